package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

const (
	TaskScrapeTitle    = "scrape:title"
	TaskScrapeReviews  = "scrape:reviews"
	TaskScrapeComments = "scrape:comments"
)

var queueNames = []string{"critical", "default", "low"}

type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

func NewQueue(redisAddr string, concurrency int) *Queue {
	if concurrency <= 0 {
		concurrency = 2
	}
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector}
}

// TaskType maps a scrape kind to its task type.
func TaskType(kind models.ScrapeKind) (string, error) {
	switch kind {
	case models.ScrapeKindTitle:
		return TaskScrapeTitle, nil
	case models.ScrapeKindReviews:
		return TaskScrapeReviews, nil
	case models.ScrapeKindComments:
		return TaskScrapeComments, nil
	}
	return "", fmt.Errorf("unknown scrape kind %q", kind)
}

// ScrapeTaskID is the dedup key of a scrape task.
func ScrapeTaskID(kind models.ScrapeKind, externalID, language string) string {
	return "scrape:" + string(kind) + ":" + externalID + ":" + language
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueScrape queues one scrape of kind for externalID. Scheduled
// rescrapes go to the low queue so on-demand requests overtake them.
func (q *Queue) EnqueueScrape(kind models.ScrapeKind, externalID, language string, scheduled bool) (string, error) {
	taskType, err := TaskType(kind)
	if err != nil {
		return "", err
	}
	queue := "default"
	if scheduled {
		queue = "low"
	}
	payload := ScrapePayload{ExternalID: externalID, Language: language}
	return q.EnqueueUnique(taskType, payload, ScrapeTaskID(kind, externalID, language), asynq.Queue(queue))
}

// EnqueueUnique enqueues a task with a deterministic TaskID so the same
// title is never queued twice. A pending or active duplicate is skipped; a
// completed or archived one still held in Redis is deleted and replaced.
func (q *Queue) EnqueueUnique(taskType string, payload interface{}, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	opts = append(opts, asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}

	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	cleared := false
	for _, queueName := range queueNames {
		if delErr := q.inspector.DeleteTask(queueName, uniqueID); delErr == nil {
			log.Printf("Queue: cleared completed/archived task %s from queue %s", uniqueID, queueName)
			cleared = true
			break
		}
	}

	if cleared {
		info, err = q.client.Enqueue(task)
		if err == nil {
			return info.ID, nil
		}
	}

	// Still conflicting: the task is pending or running
	if isTaskConflict(err) {
		log.Printf("Queue: task %s (%s) is already queued, skipping", taskType, uniqueID)
		return uniqueID, nil
	}
	return "", fmt.Errorf("enqueue: %w", err)
}

func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

func (q *Queue) Start(ctx context.Context) error {
	log.Println("Job queue worker starting...")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
