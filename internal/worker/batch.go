package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/avolkov/quaero/internal/model"
)

// Answerer runs one question through the query pipeline. Satisfied by
// pipeline.Pipeline; kept as an interface so this package does not
// depend on it.
type Answerer interface {
	Answer(ctx context.Context, question string) (*model.QueryResponse, error)
}

// QuestionJob answers a single question.
type QuestionJob struct {
	Question string
	Answerer Answerer
}

// Execute runs the job.
func (j *QuestionJob) Execute(ctx context.Context) Result {
	response, err := j.Answerer.Answer(ctx, j.Question)
	return &QuestionResult{
		Question: j.Question,
		Response: response,
		Error:    err,
	}
}

// QuestionResult is the outcome of one batch question.
type QuestionResult struct {
	Question string
	Response *model.QueryResponse
	Error    error
}

// GetError returns the error from the result.
func (r *QuestionResult) GetError() error {
	return r.Error
}

// BatchProcessor runs many questions through the pipeline concurrently.
// The pipeline's own admission limit still applies on top of the batch
// concurrency.
type BatchProcessor struct {
	answerer    Answerer
	concurrency int
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(answerer Answerer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		answerer:    answerer,
		concurrency: concurrency,
	}
}

// ProcessQuestions answers the questions concurrently and returns one
// result per question. Result order is completion order, not input order.
func (b *BatchProcessor) ProcessQuestions(ctx context.Context, questions []string) []*QuestionResult {
	if len(questions) == 0 {
		return []*QuestionResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start(ctx)

	for _, question := range questions {
		pool.Submit(&QuestionJob{
			Question: question,
			Answerer: b.answerer,
		})
	}

	results := pool.Wait()

	out := make([]*QuestionResult, len(results))
	for i, result := range results {
		out[i] = result.(*QuestionResult)
	}
	return out
}

// ProcessFile reads questions from a file and answers them concurrently.
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QuestionResult, error) {
	questions, err := ReadQuestionsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	return b.ProcessQuestions(ctx, questions), nil
}

// ReadQuestionsFromFile reads one question per line, skipping blank lines
// and # comments, deduplicating exact repeats.
func ReadQuestionsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var questions []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			questions = append(questions, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return questions, nil
}
