package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"clap-trainer/config"
	"clap-trainer/debug"
	"clap-trainer/midi"
	"clap-trainer/theme"
	"clap-trainer/tui"
)

const saveDelay = 500 * time.Millisecond

func loadTheme() *theme.Theme {
	if cfg.Palette == "" {
		return theme.New(nil)
	}
	p, err := theme.LoadOrDefault(cfg.Palette)
	if err != nil {
		debug.Log("main", "palette %s: %v", cfg.Palette, err)
	}
	return theme.New(p)
}

func runTUI() error {
	th := loadTheme()
	live := tui.NewLive(th)

	s, err := openSession(live.Callbacks())
	if err != nil {
		return err
	}
	defer s.close()

	saver := config.NewSaver(configPath, saveDelay, nil)
	defer func() {
		if err := saver.Flush(); err != nil {
			debug.Log("main", "save config: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var devices *midi.DeviceManager
	if cfg.Grid || s.tap != nil {
		devices = midi.NewDeviceManager(s.tap != nil)
		go devices.Run(ctx)
	}

	m := tui.NewModel(tui.App{
		Machine:   s.machine,
		Live:      live,
		Theme:     th,
		Config:    cfg,
		Saver:     saver,
		Presets:   s.presets,
		History:   s.history,
		DeviceMgr: devices,
		Tap:       s.tap,
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
