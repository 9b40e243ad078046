package llm

import (
	"fmt"
	"strings"
)

// ModelURI builds a completions model URI. Only the part of model before the
// first slash is used, so "yandexgpt/latest" and "yandexgpt" are equivalent.
func ModelURI(folderID, model, version string) string {
	name, _, _ := strings.Cut(model, "/")
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("gpt://%s/%s/%s", folderID, name, version)
}

// ArtModelURI builds the YandexART image model URI.
func ArtModelURI(folderID string) string {
	return fmt.Sprintf("art://%s/yandex-art/latest", folderID)
}
