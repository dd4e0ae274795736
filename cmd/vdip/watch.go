package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/registry"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "watch <session-id>",
		Short:        "Follow a running session until it reaches a verdict",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			sp := spinner.New()
			sp.Spinner = spinner.Dot

			m := watchModel{
				ctx:       cmd.Context(),
				store:     store,
				sessionID: args[0],
				spinner:   sp,
			}
			final, err := tea.NewProgram(m).Run()
			if err != nil {
				return err
			}
			if fm, ok := final.(watchModel); ok {
				if fm.err != nil {
					return fm.err
				}
				if fm.session.State.Terminal() {
					fmt.Print(renderSession(fm.session))
				}
			}
			return nil
		},
	}
	return cmd
}

type sessionMsg struct {
	session model.Session
	err     error
}

type watchModel struct {
	ctx       context.Context
	store     *registry.Store
	sessionID string
	spinner   spinner.Model
	session   model.Session
	err       error
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m watchModel) poll() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		sess, err := m.store.GetSession(m.ctx, m.sessionID)
		return sessionMsg{session: sess, err: err}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.session = msg.session
		if m.session.State.Terminal() {
			return m, tea.Quit
		}
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil || m.session.State.Terminal() {
		return ""
	}
	if m.session.ID == "" {
		return fmt.Sprintf("%s waiting for session %s\n", m.spinner.View(), m.sessionID)
	}
	return fmt.Sprintf("%s session %s: attempt %d of %d\n",
		m.spinner.View(), m.session.ID, len(m.session.Attempts), m.session.MaxAttempts)
}
