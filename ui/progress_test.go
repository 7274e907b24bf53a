package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/moyoez/productshot/types"
)

func tasks() []types.UploadTask {
	return []types.UploadTask{
		{ID: "t1", SectionID: "barcode", File: types.FileInfo{FileName: "code.jpg"}},
		{ID: "t2", SectionID: "image_front", File: types.FileInfo{FileName: "front.jpg"}},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Expected Model, got %T", next)
	}
	return model, cmd
}

func TestModelTracksResults(t *testing.T) {
	m := New("Uploading", tasks())

	m, _ = update(t, m, ProgressMsg{TaskID: "t1", Percent: 40})
	if m.rows["t1"].percent != 40 {
		t.Errorf("Expected 40%%, got %d", m.rows["t1"].percent)
	}
	m, _ = update(t, m, ResultMsg{Task: tasks()[0], Success: true, ImageID: 9})
	m, _ = update(t, m, ResultMsg{Task: tasks()[1], Error: "Upload failed (HTTP 500)"})

	// progress after the result is ignored
	m, _ = update(t, m, ProgressMsg{TaskID: "t2", Percent: 80})
	if m.rows["t2"].percent != 0 {
		t.Errorf("Expected late progress to be dropped, got %d", m.rows["t2"].percent)
	}

	ok, failed := m.Counts()
	if ok != 1 || failed != 1 {
		t.Errorf("Counts() = %d, %d, want 1, 1", ok, failed)
	}

	view := m.View()
	for _, want := range []string{"Uploading", "code.jpg", "image 9", "Upload failed (HTTP 500)", "1/2 uploaded, 1 failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}

	m, cmd := update(t, m, DoneMsg{})
	if cmd == nil || !m.done || m.Interrupted() {
		t.Error("Expected DoneMsg to finish the program")
	}
}

func TestModelAddsRetriedTasks(t *testing.T) {
	m := New("Uploading", tasks())
	retry := tasks()[1]
	retry.ID = "t3"

	m, _ = update(t, m, TaskMsg(retry))
	m, _ = update(t, m, ResultMsg{Task: retry, Success: true, ImageID: 4})
	if len(m.order) != 3 || !m.rows["t3"].done {
		t.Errorf("Expected the retry as a third row, got %v", m.order)
	}
}

func TestModelQuit(t *testing.T) {
	m := New("Uploading", tasks())
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil || !m.Interrupted() {
		t.Error("Expected q to interrupt the view")
	}
}

type sink struct{ msgs []tea.Msg }

func (s *sink) Send(msg tea.Msg) { s.msgs = append(s.msgs, msg) }

func TestCallbacks(t *testing.T) {
	s := &sink{}
	onProgress, onResult, onComplete := Callbacks(s)
	onProgress(tasks()[0], 50)
	onResult(types.UploadResult{Task: tasks()[0], Success: true})
	onComplete(nil)

	if len(s.msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(s.msgs))
	}
	if p, ok := s.msgs[0].(ProgressMsg); !ok || p.TaskID != "t1" || p.Percent != 50 {
		t.Errorf("Unexpected progress message %#v", s.msgs[0])
	}
	if _, ok := s.msgs[2].(DoneMsg); !ok {
		t.Errorf("Expected DoneMsg, got %T", s.msgs[2])
	}
}
