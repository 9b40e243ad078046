package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/black-roland/homeassistant-yandexgpt/sensor"
)

func newSensorCmd(root *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sensor",
		Short: "Poll the configured completion sensors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			if len(a.cfg.Sensors) == 0 {
				return errors.New("no sensors configured")
			}

			newCache := a.completionCaches()
			sensors := make([]*sensor.Sensor, 0, len(a.cfg.Sensors))
			for _, sc := range a.cfg.Sensors {
				rt, err := a.runtime(sc.Entry)
				if err != nil {
					return err
				}
				s, err := sensor.New(sensor.Config{
					Name:         sc.Name,
					SystemPrompt: sc.SystemPrompt,
					UserPrompt:   sc.UserPrompt,
					Client:       rt.Client,
					Cache:        newCache(),
					Logger:       a.logger.With(zap.String("sensor", sc.Name)),
				})
				if err != nil {
					return err
				}
				sensors = append(sensors, s)
			}

			if once {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, s := range sensors {
					if err := s.Update(ctx); err != nil {
						return err
					}
					if err := enc.Encode(s.State()); err != nil {
						return err
					}
				}
				return nil
			}

			var wg sync.WaitGroup
			for i, s := range sensors {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = s.Run(ctx, a.cfg.Sensors[i].Interval)
				}()
			}
			wg.Wait()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "update every sensor once and print its state")
	return cmd
}
