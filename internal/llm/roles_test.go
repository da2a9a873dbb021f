package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/lorebook/lorebook/internal/knowledge"
)

type fakeProvider struct {
	response string
	err      error
	lastUser string
}

func (f *fakeProvider) Complete(_ context.Context, _ string, user string) (string, error) {
	f.lastUser = user
	return f.response, f.err
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestClassifier(t *testing.T) {
	t.Run("full request", func(t *testing.T) {
		provider := &fakeProvider{response: `分析：需要查询。
---JSON---
{"required_docs": {"甘雨": "moegirl"},
 "required_facts": ["苹果.创始人"],
 "chat_history": {"hours": 2, "keywords": ["原神"]}}`}
		classifier := NewClassifier(provider, discard())

		request, err := classifier.Classify(context.Background(), "[用户]甘雨是谁？")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if request == nil {
			t.Fatal("request is nil")
		}
		if len(request.Docs) != 1 || request.Docs[0].Entity != "甘雨" || request.Docs[0].Source != knowledge.SourceMoegirl {
			t.Fatalf("Docs = %+v", request.Docs)
		}
		if len(request.Facts) != 1 || len(request.Facts[0].Targets) != 1 {
			t.Fatalf("Facts = %+v", request.Facts)
		}
		if request.History == nil || request.History.Hours != 2 {
			t.Fatalf("History = %+v", request.History)
		}
	})

	t.Run("empty plan means no knowledge needed", func(t *testing.T) {
		provider := &fakeProvider{response: `---JSON--- {}`}
		classifier := NewClassifier(provider, discard())

		request, err := classifier.Classify(context.Background(), "[用户]你好")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if request != nil {
			t.Fatalf("request = %+v, want nil", request)
		}
	})

	t.Run("provider error propagates", func(t *testing.T) {
		provider := &fakeProvider{err: ErrUnavailable}
		classifier := NewClassifier(provider, discard())

		if _, err := classifier.Classify(context.Background(), "[用户]甘雨是谁？"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
	})

	t.Run("malformed fact targets are skipped not fatal", func(t *testing.T) {
		provider := &fakeProvider{response: `---JSON---
{"required_docs": {"甘雨": "moegirl"}, "required_facts": ["没有点号"]}`}
		classifier := NewClassifier(provider, discard())

		request, err := classifier.Classify(context.Background(), "[用户]甘雨是谁？")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if request == nil || len(request.Docs) != 1 || len(request.Facts) != 0 {
			t.Fatalf("request = %+v", request)
		}
	})
}

func TestSelector(t *testing.T) {
	candidates := []DocCandidate{
		{Title: "甘雨", Snippet: "原神角色"},
		{Title: "甘雨 (消歧义)"},
	}

	t.Run("returns chosen title", func(t *testing.T) {
		provider := &fakeProvider{response: `---JSON--- {"selected_title": "甘雨"}`}
		selector := NewSelector(provider, discard())

		title, err := selector.SelectBest(context.Background(), "对话", "甘雨", candidates)
		if err != nil {
			t.Fatalf("SelectBest: %v", err)
		}
		if title != "甘雨" {
			t.Fatalf("title = %q", title)
		}
	})

	t.Run("declines with empty title", func(t *testing.T) {
		provider := &fakeProvider{response: `---JSON--- {"selected_title": ""}`}
		selector := NewSelector(provider, discard())

		title, err := selector.SelectBest(context.Background(), "对话", "甘雨", candidates)
		if err != nil || title != "" {
			t.Fatalf("got (%q, %v)", title, err)
		}
	})

	t.Run("no candidates short-circuits", func(t *testing.T) {
		provider := &fakeProvider{}
		selector := NewSelector(provider, discard())

		title, err := selector.SelectBest(context.Background(), "对话", "甘雨", nil)
		if err != nil || title != "" {
			t.Fatalf("got (%q, %v)", title, err)
		}
		if provider.lastUser != "" {
			t.Fatal("provider called with no candidates")
		}
	})
}

func TestCondenser(t *testing.T) {
	t.Run("returns condensed text", func(t *testing.T) {
		provider := &fakeProvider{response: "甘雨是璃月七星的秘书。"}
		condenser := NewCondenser(provider, discard())

		text, err := condenser.Condense(context.Background(), knowledge.SourceMoegirl, "很长的原文", "甘雨", "对话")
		if err != nil {
			t.Fatalf("Condense: %v", err)
		}
		if text != "甘雨是璃月七星的秘书。" {
			t.Fatalf("text = %q", text)
		}
	})

	t.Run("empty reply is an error", func(t *testing.T) {
		provider := &fakeProvider{response: "   "}
		condenser := NewCondenser(provider, discard())

		if _, err := condenser.Condense(context.Background(), knowledge.SourceWikipedia, "原文", "甘雨", ""); err == nil {
			t.Fatal("want error for empty condenser output")
		}
	})
}
