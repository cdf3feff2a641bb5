package controller

import (
	"context"

	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/config"
)

// SetScreens registers the saved-screen presets loaded at startup. A nil
// config leaves the screen endpoints empty rather than failing.
func (s *Service) SetScreens(screens *config.ScreensConfig) {
	s.screens = screens
}

// SetNotifyEndpoint enables ntfy notifications on scan completion.
func (s *Service) SetNotifyEndpoint(endpoint string) {
	s.ntfyEndpoint = endpoint
}

// ListScreens reports the configured scan presets.
func (s *Service) ListScreens(ctx context.Context) ([]config.ScreenEntry, error) {
	if s.screens == nil {
		return []config.ScreenEntry{}, nil
	}
	return append([]config.ScreenEntry(nil), s.screens.Screens...), nil
}

// StartScanScreen launches a scan of the preset registered under name.
func (s *Service) StartScanScreen(ctx context.Context, name string) (ScanStatus, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return ScanStatus{}, err
	}
	if s.screens == nil {
		return ScanStatus{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "no screens configured"}
	}
	url, ok := s.screens.Find(name)
	if !ok {
		return ScanStatus{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "unknown screen: " + name}
	}
	return s.StartScan(ctx, url)
}
