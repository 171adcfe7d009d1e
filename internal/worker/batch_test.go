package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/avolkov/quaero/internal/model"
)

// MockAnswerer implements the Answerer interface
type MockAnswerer struct {
	ShouldError bool
}

func (m *MockAnswerer) Answer(ctx context.Context, question string) (*model.QueryResponse, error) {
	time.Sleep(10 * time.Millisecond) // Simulate work
	if m.ShouldError {
		return nil, errors.New("pipeline error")
	}
	return &model.QueryResponse{
		Answer:      "42 [Source s1]",
		DataVersion: 1,
	}, nil
}

func TestBatchProcessor_ProcessQuestions(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2)

	questions := []string{"what is a?", "what is b?", "what is c?"}
	ctx := context.Background()

	results := processor.ProcessQuestions(ctx, questions)

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	successCount := 0
	for _, res := range results {
		if res.Error == nil {
			successCount++
			if res.Response == nil {
				t.Error("expected response for successful query")
			}
		} else {
			t.Errorf("unexpected error for %q: %v", res.Question, res.Error)
		}
	}

	if successCount != 3 {
		t.Errorf("expected 3 successes, got %d", successCount)
	}
}

func TestBatchProcessor_ProcessQuestions_Error(t *testing.T) {
	answerer := &MockAnswerer{ShouldError: true}
	processor := NewBatchProcessor(answerer, 2)

	results := processor.ProcessQuestions(context.Background(), []string{"what is a?"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if results[0].Error == nil {
		t.Error("expected error, got nil")
	}
	if results[0].Response != nil {
		t.Error("expected nil response on error")
	}
}

// A batch much larger than the pool's internal buffers must still run to
// completion.
func TestBatchProcessor_ManyQuestions(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2)

	questions := make([]string, 30)
	for i := range questions {
		questions[i] = fmt.Sprintf("question %d?", i)
	}

	done := make(chan []*QuestionResult, 1)
	go func() {
		done <- processor.ProcessQuestions(context.Background(), questions)
	}()

	select {
	case results := <-done:
		if len(results) != len(questions) {
			t.Errorf("expected %d results, got %d", len(questions), len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch stalled before answering all questions")
	}
}

// blockingAnswerer never answers on its own; it returns only when the
// caller's context is cancelled.
type blockingAnswerer struct{}

func (blockingAnswerer) Answer(ctx context.Context, question string) (*model.QueryResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBatchProcessor_ContextCancellation(t *testing.T) {
	processor := NewBatchProcessor(blockingAnswerer{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan []*QuestionResult, 1)
	go func() {
		done <- processor.ProcessQuestions(ctx, []string{"what is a?", "what is b?"})
	}()

	select {
	case results := <-done:
		for _, res := range results {
			if !errors.Is(res.Error, context.Canceled) {
				t.Errorf("expected context.Canceled for %q, got %v", res.Question, res.Error)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessQuestions did not return after cancellation")
	}
}

func TestBatchProcessor_ProcessQuestions_Empty(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2)

	results := processor.ProcessQuestions(context.Background(), []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadQuestionsFromFile(t *testing.T) {
	content := `what is the boiling point of water?
# comment
how many moons does jupiter have?

what is the speed of light?   `

	tmpfile, err := os.CreateTemp("", "questions")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	questions, err := ReadQuestionsFromFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ReadQuestionsFromFile failed: %v", err)
	}

	expected := []string{
		"what is the boiling point of water?",
		"how many moons does jupiter have?",
		"what is the speed of light?",
	}
	if len(questions) != len(expected) {
		t.Fatalf("expected %d questions, got %d", len(expected), len(questions))
	}

	for i, question := range questions {
		if question != expected[i] {
			t.Errorf("expected question %q at index %d, got %q", expected[i], i, question)
		}
	}
}

func TestReadQuestionsFromFile_NonExistent(t *testing.T) {
	_, err := ReadQuestionsFromFile("non_existent_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestQuestionResult_GetError(t *testing.T) {
	r1 := &QuestionResult{Question: "what is a?", Error: nil}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("query failed")
	r2 := &QuestionResult{Question: "what is a?", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	content := "what is a?\nwhat is b?\n# comment\n\nwhat is c?\n"

	tmpfile, err := os.CreateTemp("", "batch_questions")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2)

	results, err := processor.ProcessFile(context.Background(), tmpfile.Name())
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2)

	_, err := processor.ProcessFile(context.Background(), "no_such_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile_Empty(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "empty_questions")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	answerer := &MockAnswerer{}
	processor := NewBatchProcessor(answerer, 2)

	results, err := processor.ProcessFile(context.Background(), tmpfile.Name())
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results for empty file, got %d", len(results))
	}
}

func TestReadQuestionsFromFile_Deduplication(t *testing.T) {
	content := `what is a?
what is a?`

	tmpfile, err := os.CreateTemp("", "questions_dedup")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	questions, err := ReadQuestionsFromFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ReadQuestionsFromFile failed: %v", err)
	}

	if len(questions) != 1 {
		t.Errorf("expected 1 question after deduplication, got %d", len(questions))
	}
}
