package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feichai0017/doctext/internal/models"
	"github.com/feichai0017/doctext/pkg/queue"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

// upload builds a multipart file header the way gin hands it to handlers.
func upload(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func openUpload(t *testing.T, h *multipart.FileHeader) multipart.File {
	t.Helper()
	f, err := h.Open()
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

type fakeExtractor struct {
	mu      sync.Mutex
	result  *models.ExtractionResult
	info    map[string]string
	err     error
	paths   []string
	content [][]byte
}

func (f *fakeExtractor) ExtractWithMetadata(ctx context.Context, path string) (*models.ExtractionResult, map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.content = append(f.content, data)
	f.mu.Unlock()

	if f.err != nil {
		return nil, nil, f.err
	}
	return f.result, f.info, nil
}

type fakeQueue struct {
	mu         sync.Mutex
	tasks      []*queue.Task
	statuses   map[string]*queue.TaskStatus
	history    []string
	enqueueErr error
	// failEnqueueAt makes the n-th Enqueue call fail, counting from 1
	failEnqueueAt int
	enqueueCalls  int
	cancelErr     error
	closed        bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]*queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueCalls++
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if q.enqueueCalls == q.failEnqueueAt {
		return errors.New("redis down")
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	cp := *s
	return &cp, nil
}

func (q *fakeQueue) CancelTask(ctx context.Context, taskID string) error {
	if q.cancelErr != nil {
		return q.cancelErr
	}
	return q.SaveStatus(ctx, &queue.TaskStatus{TaskID: taskID, Status: queue.StatusCancelled})
}

func (q *fakeQueue) SaveStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.statuses[status.TaskID]; ok && prev.Final() {
		return nil
	}
	cp := *status
	q.statuses[status.TaskID] = &cp
	q.history = append(q.history, status.Status)
	return nil
}

func (q *fakeQueue) Close() error {
	q.closed = true
	return nil
}

type memObject struct {
	data     []byte
	modified time.Time
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string]memObject
	// keys under failPrefix cannot be stored
	failPrefix string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]memObject)}
}

func (m *memStorage) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	if m.failPrefix != "" && strings.HasPrefix(key, m.failPrefix) {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, modified: time.Now()}
	return key, nil
}

func (m *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, obj := range m.objects {
		if obj.modified.Before(threshold) {
			delete(m.objects, k)
		}
	}
	return nil
}
