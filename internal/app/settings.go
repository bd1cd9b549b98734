package app

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ayusman/biotwin/internal/gesture"
	"github.com/ayusman/biotwin/internal/store"
)

// Settings is the runtime-adjustable configuration persisted in the store.
type Settings struct {
	Mirror            bool                 `json:"mirror"`
	RotationMode      gesture.RotationMode `json:"rotation_mode"`
	ParticleStride    int                  `json:"particle_stride"`
	SimplifyTolerance float64              `json:"simplify_tolerance"`
}

// Settings returns the active runtime settings.
func (a *App) Settings() Settings {
	s := Settings{
		Mirror:       a.mirror.Load(),
		RotationMode: a.detector.Config().Mode,
	}
	if a.pipeline != nil {
		config := a.pipeline.Config()
		s.ParticleStride = config.Particles.Stride
		s.SimplifyTolerance = config.Contour.Tolerance
	}
	return s
}

// ApplySettings validates and applies key-value settings. Unknown keys are
// rejected; nothing is applied when any value is invalid.
func (a *App) ApplySettings(values map[string]string) error {
	next := a.Settings()

	for key, value := range values {
		var err error
		switch key {
		case store.SettingMirror:
			next.Mirror, err = strconv.ParseBool(value)
		case store.SettingRotationMode:
			next.RotationMode, err = gesture.ParseRotationMode(value)
		case store.SettingParticleStride:
			next.ParticleStride, err = strconv.Atoi(value)
			if err == nil && next.ParticleStride <= 0 {
				err = errors.New("must be positive")
			}
		case store.SettingSimplifyTolerance:
			next.SimplifyTolerance, err = strconv.ParseFloat(value, 64)
			if err == nil && next.SimplifyTolerance <= 0 {
				err = errors.New("must be positive")
			}
		default:
			err = errors.New("unknown setting")
		}
		if err != nil {
			return fmt.Errorf("setting %s=%q: %w", key, value, err)
		}
	}

	a.mirror.Store(next.Mirror)
	a.detector.SetMode(next.RotationMode)
	if a.pipeline != nil {
		config := a.pipeline.Config()
		config.Particles.Stride = next.ParticleStride
		config.Contour.Tolerance = next.SimplifyTolerance
		a.pipeline.SetConfig(config)
	}
	return nil
}

// LoadSettings applies the settings saved in the store.
func (a *App) LoadSettings() error {
	if a.config.Store == nil {
		return nil
	}
	values, err := a.config.Store.Settings().All()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if len(values) == 0 {
		return nil
	}
	return a.ApplySettings(values)
}

// SaveSettings validates, applies and persists key-value settings.
func (a *App) SaveSettings(values map[string]string) error {
	if err := a.ApplySettings(values); err != nil {
		return err
	}
	if a.config.Store == nil {
		return nil
	}
	repo := a.config.Store.Settings()
	for key, value := range values {
		if err := repo.Set(key, value); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}
	return nil
}
