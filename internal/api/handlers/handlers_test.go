package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/lease"
	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/publisher"
	"github.com/avataralabs/queuelabs-sub000/internal/repository/memory"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
)

// Tuesday 10:00 in UTC+7.
var now = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)

var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

type blobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *blobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return nil
}

func (b *blobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.data[key]; ok {
		return d, nil
	}
	return nil, errors.New("missing")
}

func (b *blobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *blobs) URL(key string) string { return "https://cdn.test/" + key }

type okPublisher struct{}

func (okPublisher) Publish(context.Context, *publisher.Request) (*publisher.Result, error) {
	return &publisher.Result{ExternalID: "x"}, nil
}

type testServer struct {
	app       *fiber.App
	store     *memory.Store
	profileID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	clock := func() time.Time { return now }
	loc, err := scheduling.DisplayZone(7)
	if err != nil {
		t.Fatal(err)
	}
	bs := &blobs{data: make(map[string][]byte)}

	assign := service.NewAssignService(store.Contents(), store.Slots(), store.Profiles(),
		scheduling.NewResolver(loc, 0), 5, nil, clock)
	contents := service.NewContentService(store.Contents(), store.Slots(), store.Profiles(), store.History(), assign, bs, clock)
	dispatch := service.NewDispatchService(store.Contents(), store.Slots(), store.Profiles(), store.History(),
		lease.NewManager(store.Contents(), 0), okPublisher{}, bs, nil, service.DispatchOptions{Clock: clock})

	app := fiber.New()
	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Locals("user_id", "1")
		return c.Next()
	})
	Register(api, Handlers{
		Content:  NewContentHandler(contents),
		Slots:    NewSlotHandler(service.NewSlotService(store.Slots(), store.Profiles())),
		Profiles: NewProfileHandler(service.NewProfileService(store.Profiles(), "0123456789abcdef0123456789abcdef"), assign),
		Dispatch: NewDispatchHandler(dispatch),
	})

	profileID, err := store.Profiles().Create(context.Background(), &models.Profile{UserID: 1, Name: "studio"})
	if err != nil {
		t.Fatal(err)
	}
	return &testServer{app: app, store: store, profileID: profileID}
}

func (s *testServer) slot(t *testing.T, platform string, hour int) int64 {
	t.Helper()
	id, err := s.store.Slots().Create(context.Background(), &models.ScheduleSlot{
		ProfileID: s.profileID, UserID: 1, Platform: platform, Hour: hour, Type: models.SlotTypeDaily, IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (s *testServer) pending(t *testing.T) int64 {
	t.Helper()
	id, err := s.store.Contents().Create(context.Background(), nil, &models.Content{UserID: 1, FileName: "a.mp4", FileKey: "videos/a.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func TestAssignNextSlotRPC(t *testing.T) {
	s := newTestServer(t)
	slotID := s.slot(t, "tiktok", 18)
	contentID := s.pending(t)

	status, body := s.do(t, "POST", "/api/rpc/assign-next-slot", map[string]any{
		"profileId": s.profileID, "platform": "tiktok", "contentId": contentID, "userId": 1,
	})
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	var got struct {
		Success       bool      `json:"success"`
		SlotID        int64     `json:"slot_id"`
		Hour          int       `json:"hour"`
		Minute        int       `json:"minute"`
		ScheduledAt   time.Time `json:"scheduled_at"`
		ScheduledDate string    `json:"scheduled_date"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC)
	if !got.Success || got.SlotID != slotID || got.Hour != 18 || got.ScheduledDate != "2024-01-02" || !got.ScheduledAt.Equal(want) {
		t.Fatalf("response = %+v", got)
	}
}

func TestAssignNextSlotRPC_FailureDeletesRow(t *testing.T) {
	s := newTestServer(t)
	contentID := s.pending(t)

	status, body := s.do(t, "POST", "/api/rpc/assign-next-slot", map[string]any{
		"profileId": s.profileID, "platform": "tiktok", "contentId": contentID,
	})
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var got map[string]any
	json.Unmarshal(body, &got)
	if got["success"] != false || got["error"] == "" {
		t.Fatalf("body = %s", body)
	}
	if c, _ := s.store.Contents().GetByID(context.Background(), contentID); c != nil {
		t.Fatal("provisional row survived")
	}
}

func TestAssignNextSlotRPC_ForeignUser(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, "POST", "/api/rpc/assign-next-slot", map[string]any{
		"profileId": s.profileID, "platform": "tiktok", "contentId": s.pending(t), "userId": 2,
	})
	if status != fiber.StatusForbidden {
		t.Fatalf("status = %d", status)
	}
}

func TestUploadMultipart(t *testing.T) {
	s := newTestServer(t)
	s.slot(t, "tiktok", 18)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "clip.mp4")
	part.Write(mp4Header)
	w.WriteField("caption", "hello")
	w.WriteField("targets", fmt.Sprintf(`[{"profile_id":%d,"platform":"tiktok"},{"profile_id":%d,"platform":"youtube"}]`, s.profileID, s.profileID))
	w.Close()

	req := httptest.NewRequest("POST", "/api/contents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	status, body := s.send(t, req)
	if status != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	var got struct {
		Results []service.TargetResult `json:"results"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 || got.Results[0].Assignment == nil || got.Results[1].Error == "" {
		t.Fatalf("results = %+v", got.Results)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("caption", "hello")
	w.Close()

	req := httptest.NewRequest("POST", "/api/contents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if status, _ := s.send(t, req); status != fiber.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestContentRoutes(t *testing.T) {
	s := newTestServer(t)
	s.slot(t, "tiktok", 18)
	id := s.pending(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/contents/abc", fiber.StatusBadRequest},
		{"GET", "/api/contents/9999", fiber.StatusNotFound},
		{"GET", fmt.Sprintf("/api/contents/%d", id), fiber.StatusOK},
		{"GET", "/api/contents?status=bogus", fiber.StatusBadRequest},
		{"GET", "/api/contents?status=pending", fiber.StatusOK},
		{"POST", fmt.Sprintf("/api/contents/%d/unschedule", id), fiber.StatusConflict},
		{"DELETE", fmt.Sprintf("/api/contents/%d", id), fiber.StatusConflict},
		{"POST", fmt.Sprintf("/api/contents/%d/trash", id), fiber.StatusNoContent},
		{"POST", fmt.Sprintf("/api/contents/%d/restore", id), fiber.StatusNoContent},
		{"POST", fmt.Sprintf("/api/contents/%d/reassign", id), fiber.StatusConflict},
		{"POST", fmt.Sprintf("/api/contents/%d/trash", id), fiber.StatusNoContent},
		{"DELETE", fmt.Sprintf("/api/contents/%d", id), fiber.StatusNoContent},
		{"GET", "/api/history?limit=5", fiber.StatusOK},
	}
	for _, tt := range tests {
		if status, body := s.do(t, tt.method, tt.path, nil); status != tt.want {
			t.Fatalf("%s %s = %d, want %d (%s)", tt.method, tt.path, status, tt.want, body)
		}
	}
}

func TestSlotRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/slots", map[string]any{
		"profile_id": s.profileID, "platform": "tiktok", "hour": 18, "minute": 0, "type": "weekly", "week_days": []int{3, 1},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create = %d %s", status, body)
	}
	var slot models.ScheduleSlot
	json.Unmarshal(body, &slot)
	if !slot.IsActive || len(slot.WeekDays) != 2 || slot.WeekDays[0] != 1 {
		t.Fatalf("slot = %+v", slot)
	}

	if status, body := s.do(t, "POST", "/api/slots", map[string]any{
		"profile_id": s.profileID, "platform": "tiktok", "hour": 25, "type": "daily",
	}); status != fiber.StatusBadRequest {
		t.Fatalf("invalid hour = %d %s", status, body)
	}

	if status, _ := s.do(t, "POST", fmt.Sprintf("/api/slots/%d/deactivate", slot.ID), nil); status != fiber.StatusNoContent {
		t.Fatalf("deactivate = %d", status)
	}
	if status, _ := s.do(t, "GET", fmt.Sprintf("/api/profiles/%d/preview?platform=tiktok&count=2", s.profileID), nil); status != fiber.StatusConflict {
		t.Fatalf("preview with only inactive slots = %d", status)
	}
	if status, _ := s.do(t, "POST", fmt.Sprintf("/api/slots/%d/activate", slot.ID), nil); status != fiber.StatusNoContent {
		t.Fatalf("activate = %d", status)
	}

	status, body = s.do(t, "GET", fmt.Sprintf("/api/profiles/%d/preview?platform=tiktok&count=2", s.profileID), nil)
	if status != fiber.StatusOK {
		t.Fatalf("preview = %d %s", status, body)
	}
	var preview []map[string]any
	json.Unmarshal(body, &preview)
	// Tuesday morning: Wednesday then the following Monday.
	if len(preview) != 2 || preview[0]["scheduled_date"] != "2024-01-03" || preview[1]["scheduled_date"] != "2024-01-08" {
		t.Fatalf("preview = %s", body)
	}

	status, body = s.do(t, "DELETE", fmt.Sprintf("/api/slots/%d", slot.ID), nil)
	if status != fiber.StatusOK {
		t.Fatalf("delete = %d %s", status, body)
	}
}

func TestProfileRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/profiles", map[string]any{"name": "Channel", "platform": "youtube"})
	if status != fiber.StatusCreated {
		t.Fatalf("create = %d %s", status, body)
	}
	var p models.Profile
	json.Unmarshal(body, &p)

	if status, _ := s.do(t, "POST", "/api/profiles", map[string]any{"name": ""}); status != fiber.StatusBadRequest {
		t.Fatalf("empty name = %d", status)
	}
	if status, _ := s.do(t, "GET", "/api/profiles", nil); status != fiber.StatusOK {
		t.Fatalf("list = %d", status)
	}
	if status, _ := s.do(t, "DELETE", fmt.Sprintf("/api/profiles/%d", p.ID), nil); status != fiber.StatusNoContent {
		t.Fatalf("delete = %d", status)
	}
	if status, _ := s.do(t, "DELETE", fmt.Sprintf("/api/profiles/%d", p.ID), nil); status != fiber.StatusNotFound {
		t.Fatalf("delete twice = %d", status)
	}
}

func TestDispatchRun(t *testing.T) {
	s := newTestServer(t)
	slotID := s.slot(t, "tiktok", 9)
	ctx := context.Background()
	id := s.pending(t)
	s.store.Contents().Reserve(ctx, models.SlotReservation{
		ContentID: id, ProfileID: s.profileID, SlotID: slotID,
		ScheduledAt: now.Add(-time.Hour), ScheduledDate: "2024-01-02",
	})

	status, body := s.do(t, "POST", "/api/dispatch/run", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d %s", status, body)
	}
	var report service.PassReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatal(err)
	}
	// The blob is missing, which is a transport failure and retried.
	if report.Due != 1 || report.Outcomes[service.OutcomeRetryScheduled] != 1 {
		t.Fatalf("report = %s", body)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", service.ErrInvalidInput), fiber.StatusBadRequest},
		{service.ErrContentNotFound, fiber.StatusNotFound},
		{service.ErrNoAvailableSlot, fiber.StatusConflict},
		{service.ErrReservationContention, fiber.StatusConflict},
		{service.ErrInvalidState, fiber.StatusConflict},
		{fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type reportingDispatcher struct {
	report *service.PassReport
}

func (d reportingDispatcher) RunPass(context.Context) (*service.PassReport, error) {
	return d.report, nil
}

func (d reportingDispatcher) DispatchOne(context.Context, int64) (service.Outcome, error) {
	return service.OutcomeSkipped, nil
}

func TestDispatchRun_OmitsPerItemErrors(t *testing.T) {
	app := fiber.New()
	h := NewDispatchHandler(reportingDispatcher{report: &service.PassReport{
		Due:      2,
		Outcomes: map[service.Outcome]int{service.OutcomeError: 1, service.OutcomePublished: 1},
		Errors:   map[int64]string{42: "other user's content failed"},
	}})
	app.Post("/dispatch/run", h.RunPass)

	resp, err := app.Test(httptest.NewRequest("POST", "/dispatch/run", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["errors"]; ok {
		t.Fatalf("response leaks per-item errors: %s", body)
	}
	if string(got["due"]) != "2" {
		t.Fatalf("report = %s", body)
	}
}
