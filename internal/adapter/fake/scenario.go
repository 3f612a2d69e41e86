package fake

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/radio-control/ranger/internal/adapter"
	"github.com/radio-control/ranger/internal/device"
)

// Scenario is a scripted sequence of advertisements.
type Scenario struct {
	Name           string                  `yaml:"name"`
	Loop           bool                    `yaml:"loop"`
	Advertisements []ScriptedAdvertisement `yaml:"advertisements"`
}

// ScriptedAdvertisement is one scenario step. Delay is waited before the
// advertisement is emitted; Repeat emits it that many extra times.
type ScriptedAdvertisement struct {
	Address string        `yaml:"address"`
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	Bond    string        `yaml:"bond"`
	Payload string        `yaml:"payload"`
	RSSI    int           `yaml:"rssi"`
	Delay   time.Duration `yaml:"delay"`
	Repeat  int           `yaml:"repeat"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every step decodes to a valid advertisement.
func (s *Scenario) Validate() error {
	for i, step := range s.Advertisements {
		if _, err := step.Advertisement(); err != nil {
			return fmt.Errorf("advertisement %d: %w", i, err)
		}
		if step.Delay < 0 {
			return fmt.Errorf("advertisement %d: delay must be non-negative", i)
		}
		if step.Repeat < 0 {
			return fmt.Errorf("advertisement %d: repeat must be non-negative", i)
		}
	}
	return nil
}

// Advertisement converts the step to an adapter advertisement.
func (a ScriptedAdvertisement) Advertisement() (adapter.Advertisement, error) {
	if a.Address == "" {
		return adapter.Advertisement{}, fmt.Errorf("address is required")
	}

	var payload []byte
	if a.Payload != "" {
		var err error
		payload, err = hex.DecodeString(strings.ReplaceAll(a.Payload, " ", ""))
		if err != nil {
			return adapter.Advertisement{}, fmt.Errorf("invalid payload: %w", err)
		}
	}

	return adapter.Advertisement{
		Identity: device.Identity{
			Address: a.Address,
			Name:    a.Name,
			Kind:    device.ParseKind(a.Kind),
			Bond:    device.ParseBondState(a.Bond),
		},
		RSSI:    a.RSSI,
		Payload: payload,
	}, nil
}

// Play emits each step through emit until the scenario ends or ctx is done.
// Looping scenarios run until ctx is done.
func (s *Scenario) Play(ctx context.Context, emit func(adapter.Advertisement) int) error {
	for {
		for _, step := range s.Advertisements {
			if step.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(step.Delay):
				}
			}

			adv, err := step.Advertisement()
			if err != nil {
				return err
			}
			for n := 0; n <= step.Repeat; n++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				emit(adv)
			}
		}

		if !s.Loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(playbackTick):
		}
	}
}
