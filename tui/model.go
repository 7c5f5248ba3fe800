package tui

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"clap-trainer/clock"
	"clap-trainer/config"
	"clap-trainer/debug"
	"clap-trainer/midi"
	"clap-trainer/onset"
	"clap-trainer/pattern"
	"clap-trainer/position"
	"clap-trainer/quiz"
	"clap-trainer/store"
	"clap-trainer/theme"
	"clap-trainer/widgets"
)

const (
	tempoStep   = 5
	recentShown = 3
	frameRate   = 30
)

// App is everything the model drives. Presets, History, Saver,
// DeviceMgr and Tap may be nil.
type App struct {
	Machine   *quiz.Machine
	Live      *Live
	Theme     *theme.Theme
	Config    *config.Config
	Saver     *config.Saver
	Presets   *store.Presets
	History   *store.History
	DeviceMgr *midi.DeviceManager
	Tap       *midi.Tap
	Rand      *rand.Rand
}

// gridLink is the Launchpad mirror while one is connected
type gridLink struct {
	id     string
	grid   *midi.Grid
	cancel context.CancelFunc
	ctx    context.Context
}

type Model struct {
	app App

	presets []pattern.Preset
	preset  int // index into presets, -1 for an unsaved pattern
	cursor  int
	loop    bool
	pickup  bool

	recent []quiz.Record
	stats  store.Stats
	seen   string // id of the last result folded into recent

	status   string
	err      error
	showHelp bool
	quitting bool
	ticking  bool
	grid     *gridLink
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

type padPressMsg int

type frameMsg struct{}

type errMsg struct{ err error }

func NewModel(app App) Model {
	if app.Rand == nil {
		app.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m := Model{
		app:    app,
		preset: -1,
		loop:   app.Config.Session.Loop,
		pickup: app.Config.Session.Pickup,
	}
	m.reloadPresets()
	m.reloadHistory()

	start := 0
	for i, p := range m.presets {
		if p.ID == app.Config.Session.LastPreset {
			start = i
		}
	}
	if len(m.presets) > 0 {
		m.selectPreset(start)
	}
	return m
}

func ListenForUpdates(live *Live) tea.Cmd {
	return func() tea.Msg {
		<-live.Updates()
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func listenForPresses(link *gridLink) tea.Cmd {
	return func() tea.Msg {
		select {
		case slot := <-link.grid.Presses():
			return padPressMsg(slot)
		case <-link.ctx.Done():
			return nil
		}
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(time.Time) tea.Msg { return frameMsg{} })
}

// run calls fn off the update loop; starting an attempt opens the input
// and may block
func run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.app.Live)}
	if m.app.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.app.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.status = ""
		m.err = nil
		m.app.Live.ClearError()
		return m.handleKey(msg.String())

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			if slot := widgets.SlotAt(msg.X - gridIndent); slot >= 0 && msg.Y == m.gridRow() {
				m.cursor = slot
				m.toggle(slot)
			}
		}

	case UpdateMsg:
		m.syncResult()
		cmd := ListenForUpdates(m.app.Live)
		if !m.ticking && m.app.Machine.Phase() == quiz.PhaseRecording {
			m.ticking = true
			return m, tea.Batch(cmd, nextFrame())
		}
		return m, cmd

	case frameMsg:
		// the recording pass has no time markers; redraw to move the playhead
		if m.app.Machine.Phase() == quiz.PhaseRecording {
			return m, nextFrame()
		}
		m.ticking = false

	case padPressMsg:
		slot := int(msg)
		m.cursor = slot
		m.toggle(slot)
		if m.grid != nil {
			return m, listenForPresses(m.grid)
		}

	case errMsg:
		m.err = msg.err

	case DeviceEventMsg:
		cmd := m.handleDevice(midi.DeviceEvent(msg))
		return m, tea.Batch(cmd, ListenForDevices(m.app.DeviceMgr))
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	machine := m.app.Machine

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		machine.Abort()
		if m.grid != nil {
			m.grid.cancel()
		}
		return m, tea.Quit

	case "h", "left":
		m.cursor = (m.cursor + position.TotalSlots - 1) % position.TotalSlots

	case "l", "right":
		m.cursor = (m.cursor + 1) % position.TotalSlots

	case "H", "shift+left":
		m.cursor = (m.cursor + position.TotalSlots - position.SlotsPerBeat) % position.TotalSlots

	case "L", "shift+right":
		m.cursor = (m.cursor + position.SlotsPerBeat) % position.TotalSlots

	case " ", "enter":
		m.toggle(m.cursor)

	case "c":
		m.edit(pattern.New(), -1)

	case "tab":
		if len(m.presets) > 0 {
			m.selectPreset((m.preset + 1) % len(m.presets))
		}

	case "shift+tab":
		if len(m.presets) > 0 {
			i := m.preset - 1
			if i < 0 {
				i = len(m.presets) - 1
			}
			m.selectPreset(i)
		}

	case "1", "2", "3", "4":
		d := pattern.Difficulties()[key[0]-'1']
		p, err := pattern.Generate(d, m.app.Rand)
		if err != nil {
			m.err = err
			break
		}
		if m.edit(p, -1) {
			m.status = fmt.Sprintf("generated %s question", d)
		}

	case "s":
		m.savePreset()

	case "x":
		m.deletePreset()

	case "p":
		if machine.Practicing() {
			m.err = machine.StopPractice()
		} else {
			m.err = machine.StartPractice(m.loop)
		}

	case "u":
		if err := machine.SetPickup(!m.pickup); err != nil {
			m.err = err
			break
		}
		m.pickup = !m.pickup
		m.app.Config.Session.Pickup = m.pickup
		m.save()
		m.status = fmt.Sprintf("pickup %s", onOff(m.pickup))

	case "o":
		m.loop = !m.loop
		m.app.Config.Session.Loop = m.loop
		m.save()
		m.status = fmt.Sprintf("loop %s", onOff(m.loop))

	case "r":
		if machine.Phase() == quiz.PhaseResult {
			return m, run(machine.Retry)
		}
		return m, run(machine.Start)

	case "esc":
		m.err = machine.Abort()

	case "+", "=":
		m.setTempo(machine.BPM() + tempoStep)

	case "-", "_":
		m.setTempo(machine.BPM() - tempoStep)

	case "?":
		m.showHelp = !m.showHelp
	}

	return m, nil
}

func (m *Model) handleDevice(ev midi.DeviceEvent) tea.Cmd {
	switch ev.Type {
	case midi.DeviceConnected:
		switch ev.Controller.Type() {
		case midi.ControllerLaunchpad:
			if !m.app.Config.Grid || m.grid != nil {
				return nil
			}
			ctx, cancel := context.WithCancel(context.Background())
			link := &gridLink{id: ev.ID, grid: midi.NewGrid(ev.Controller), ctx: ctx, cancel: cancel}
			link.grid.SetPattern(m.app.Machine.Pattern())
			go link.grid.Run(ctx)
			m.app.Live.SetGrid(link.grid)
			m.grid = link
			m.status = "launchpad connected"
			return listenForPresses(link)

		case midi.ControllerPads:
			if m.app.Tap != nil {
				m.app.Tap.SetController(ev.Controller)
				m.status = "tap pads connected"
			}
		}

	case midi.DeviceDisconnected:
		if m.grid != nil && m.grid.id == ev.ID {
			m.grid.cancel()
			m.app.Live.SetGrid(nil)
			m.grid = nil
			m.status = "launchpad disconnected"
		}
		if m.app.Tap != nil {
			m.app.Tap.Release(ev.ID)
		}
	}
	return nil
}

func (m *Model) toggle(slot int) {
	p := m.app.Machine.Pattern()
	p.Toggle(slot)
	m.edit(p, -1)
}

// edit hands p to the machine. preset is the index p came from, -1 for
// an unsaved pattern.
func (m *Model) edit(p pattern.Pattern, preset int) bool {
	name := ""
	if preset >= 0 {
		name = m.presets[preset].Name
	}
	if err := m.app.Machine.SetPattern(p, name); err != nil {
		m.err = err
		return false
	}
	m.preset = preset
	m.app.Live.Clear()
	if m.grid != nil {
		m.grid.grid.SetPattern(p)
	}

	id := ""
	if preset >= 0 {
		id = m.presets[preset].ID
	}
	if m.app.Config.Session.LastPreset != id {
		m.app.Config.Session.LastPreset = id
		m.save()
	}
	return true
}

func (m *Model) selectPreset(i int) {
	pr := m.presets[i]
	p, err := pr.Pattern()
	if err != nil {
		m.err = err
		return
	}
	if pr.UsePickup != m.pickup {
		if err := m.app.Machine.SetPickup(pr.UsePickup); err != nil {
			m.err = err
			return
		}
		m.pickup = pr.UsePickup
	}
	if m.edit(p, i) {
		m.status = pr.Name
	}
}

func (m *Model) savePreset() {
	if m.app.Presets == nil {
		m.err = errors.New("no preset storage")
		return
	}
	n := 1
	for _, pr := range m.presets {
		if pr.IsCustom {
			n++
		}
	}
	p := m.app.Machine.Pattern()
	pr := pattern.NewCustom(fmt.Sprintf("My pattern %d", n), p, m.pickup, time.Now())
	if err := m.app.Presets.Save(pr); err != nil {
		m.err = err
		return
	}
	m.reloadPresets()
	for i := range m.presets {
		if m.presets[i].ID == pr.ID {
			m.edit(p, i)
		}
	}
	m.status = fmt.Sprintf("saved %q", pr.Name)
}

func (m *Model) deletePreset() {
	if m.preset < 0 || m.app.Presets == nil {
		return
	}
	pr := m.presets[m.preset]
	if err := m.app.Presets.Delete(pr.ID); err != nil {
		m.err = err
		return
	}
	m.reloadPresets()
	m.edit(m.app.Machine.Pattern(), -1)
	m.status = fmt.Sprintf("deleted %q", pr.Name)
}

func (m *Model) setTempo(bpm float64) {
	bpm = min(max(bpm, position.MinBPM), position.MaxBPM)
	if err := m.app.Machine.SetBPM(bpm); err != nil {
		m.err = err
		return
	}
	m.app.Config.Session.Tempo = int(bpm)
	m.save()
}

func (m *Model) save() {
	if m.app.Saver != nil {
		m.app.Saver.Save(*m.app.Config)
	}
}

// reloadPresets refreshes the list, keeping the selection by id
func (m *Model) reloadPresets() {
	selected := ""
	if m.preset >= 0 {
		selected = m.presets[m.preset].ID
	}
	if m.app.Presets == nil {
		m.presets = pattern.BuiltIns()
	} else {
		all, err := m.app.Presets.All()
		if err != nil {
			debug.Log("tui", "presets: %v", err)
			m.err = err
		}
		m.presets = all
	}
	m.preset = -1
	for i, pr := range m.presets {
		if pr.ID == selected {
			m.preset = i
		}
	}
}

func (m *Model) reloadHistory() {
	if m.app.History == nil {
		return
	}
	recent, err := m.app.History.Recent(recentShown)
	if err != nil {
		debug.Log("tui", "history: %v", err)
	}
	m.recent = recent
	m.stats, _ = m.app.History.Statistics()
}

// syncResult folds a new result into the recent list once
func (m *Model) syncResult() {
	rec, ok := m.app.Machine.Result()
	if !ok || rec.ID == m.seen {
		return
	}
	m.seen = rec.ID
	m.reloadHistory()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// View layout: the pattern grid starts at a fixed line so mouse clicks
// can be mapped back to slots
const (
	gridIndent = 2
	gridTop    = 4
)

func (m Model) gridRow() int { return gridTop + 1 }

var keys = []widgets.KeySection{
	{Title: "Pattern", Keys: []widgets.KeyBinding{
		{Key: "h/l", Desc: "move"},
		{Key: "H/L", Desc: "move a beat"},
		{Key: "space", Desc: "toggle slot"},
		{Key: "c", Desc: "clear"},
		{Key: "tab", Desc: "next preset"},
		{Key: "1-4", Desc: "random easy/medium/hard/hell"},
		{Key: "s", Desc: "save as preset"},
		{Key: "x", Desc: "delete preset"},
	}},
	{Title: "Play", Keys: []widgets.KeyBinding{
		{Key: "p", Desc: "practice"},
		{Key: "o", Desc: "loop practice"},
		{Key: "u", Desc: "pickup cue"},
		{Key: "+/-", Desc: "tempo"},
	}},
	{Title: "Quiz", Keys: []widgets.KeyBinding{
		{Key: "r", Desc: "start / retry"},
		{Key: "esc", Desc: "abort"},
	}},
}

var shortKeys = []widgets.KeyBinding{
	{Key: "space", Desc: "toggle"},
	{Key: "tab", Desc: "preset"},
	{Key: "p", Desc: "practice"},
	{Key: "r", Desc: "quiz"},
	{Key: "+/-", Desc: "tempo"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.app.Theme
	machine := m.app.Machine
	frame := m.app.Live.Snapshot()
	phase := machine.Phase()
	practicing := machine.Practicing()

	headerStyle := th.Style(theme.RoleAccent)
	dimStyle := th.Style(theme.RoleMuted)
	warnStyle := th.Style(theme.RoleWarning)

	state := string(phase)
	if practicing {
		state = "practice"
	}
	device := ""
	if m.grid != nil {
		device = "  " + widgets.RenderPad(th.RGB(theme.RoleSuccess)) + " LP"
	}
	header := headerStyle.Render(fmt.Sprintf("clap-trainer  %-10s %3.0fbpm  loop:%s  pickup:%s",
		state, machine.BPM(), onOff(m.loop), onOff(m.pickup))) + device

	name := "custom pattern"
	if m.preset >= 0 {
		name = m.presets[m.preset].Name
	}

	st := widgets.GridState{Cursor: m.cursor, Playhead: frame.Playhead}
	if phase == quiz.PhaseRecording {
		st.Playhead = machine.Position().Sixteenths() - position.RecordStart.Sixteenths()
		if st.Playhead < 0 || st.Playhead >= position.TotalSlots {
			st.Playhead = -1
		}
	}
	switch phase {
	case quiz.PhaseRecording, quiz.PhaseEvaluating, quiz.PhaseResult:
		st.Heard = frame.Heard
	}
	rec, hasResult := machine.Result()
	if hasResult {
		st.Result = &rec.Evaluation
	}
	grid := widgets.RenderPattern(th, machine.Pattern(), st)

	lines := []string{
		"",
		header,
		dimStyle.Render(name),
		"",
	}
	for _, row := range strings.Split(grid, "\n") {
		lines = append(lines, strings.Repeat(" ", gridIndent)+row)
	}
	lines = append(lines, widgets.RenderLegend(th), "")

	switch phase {
	case quiz.PhaseCountdown:
		lines = append(lines, headerStyle.Bold(true).Render(fmt.Sprintf("get ready... %d", frame.Countdown)))
	case quiz.PhasePlaying:
		if practicing {
			lines = append(lines, "practice: clap along")
		} else {
			lines = append(lines, "listen...")
		}
	case quiz.PhaseRecording:
		lines = append(lines, th.Style(theme.RoleSuccess).Bold(true).Render("clap now!"))
	case quiz.PhaseEvaluating:
		lines = append(lines, "scoring...")
	case quiz.PhaseResult:
		lines = append(lines, widgets.RenderResult(th, rec), dimStyle.Render("r: retry  any edit: back to editing"))
	default:
		lines = append(lines, dimStyle.Render("press r to start a quiz"))
	}

	if len(m.recent) > 0 {
		lines = append(lines, "", headerStyle.Render("recent"), widgets.RenderHistory(th, m.recent))
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%d attempts  average %.1f%%  best %.1f%%  timing %.0fms",
			m.stats.Total, m.stats.AverageAccuracy, m.stats.BestAccuracy, m.stats.AverageTimingError)))
	}

	lines = append(lines, "")
	if err := m.err; err != nil {
		lines = append(lines, warnStyle.Render(describe(err)))
	} else if frame.Err != nil {
		lines = append(lines, warnStyle.Render(describe(frame.Err)))
	} else if m.status != "" {
		lines = append(lines, m.status)
	}

	if m.showHelp {
		lines = append(lines, "", widgets.RenderKeyHelp(keys))
	} else {
		lines = append(lines, dimStyle.Render(widgets.RenderKeyLine(shortKeys)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// describe turns errors into something a player can act on
func describe(err error) string {
	switch {
	case errors.Is(err, onset.ErrInputUnavailable):
		return "no microphone: check the input device and its permission"
	case errors.Is(err, quiz.ErrBusy):
		return "an attempt is running: esc to abort"
	case errors.Is(err, clock.ErrBPMLocked):
		return "stop playback to change the tempo"
	}
	return err.Error()
}
