package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}
}

func TestPlainOutputWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "saved %s", "a.mp4")
	Error(&buf, "failed: %d", 3)
	Muted(&buf, "via %s", "tmate")

	want := "✓ saved a.mp4\n✗ failed: 3\nvia tmate\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("escape codes written to non-terminal")
	}
}

func TestList(t *testing.T) {
	var buf bytes.Buffer
	List(&buf, []string{"musicaldown", "tiktokio"})

	want := " 1. musicaldown\n 2. tiktokio\n"
	if buf.String() != want {
		t.Errorf("List = %q, want %q", buf.String(), want)
	}
}

func TestSpinWithoutTerminalRunsTask(t *testing.T) {
	var buf bytes.Buffer
	wantErr := errors.New("boom")

	ran := false
	err := Spin(context.Background(), &buf, "fetching", func(context.Context) error {
		ran = true
		return wantErr
	})

	if !ran {
		t.Fatal("task did not run")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestSpinnerModelQuitsWhenDone(t *testing.T) {
	m := newSpinnerModel("fetching")
	if !strings.Contains(m.View(), "fetching") {
		t.Errorf("View() = %q, want label", m.View())
	}

	next, cmd := m.Update(taskDoneMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command is not tea.Quit")
	}
	if next.View() != "" {
		t.Errorf("View() after done = %q, want empty", next.View())
	}
}
