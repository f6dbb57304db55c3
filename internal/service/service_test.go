package service

import (
	"Horizon/internal/api/config"
	"Horizon/internal/api/dto"
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"Horizon/internal/pkg/es"
	"Horizon/internal/pkg/security"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type fakeAdminRepo struct {
	admins    map[string]*model.Admin
	lastLogin map[uint64]time.Time
}

func newFakeAdminRepo() *fakeAdminRepo {
	return &fakeAdminRepo{admins: make(map[string]*model.Admin), lastLogin: make(map[uint64]time.Time)}
}

func (r *fakeAdminRepo) GetAdminByUsername(_ context.Context, username string) (*model.Admin, error) {
	return r.admins[username], nil
}

func (r *fakeAdminRepo) CreateAdmin(_ context.Context, admin *model.Admin) error {
	admin.ID = uint64(len(r.admins) + 1)
	r.admins[admin.Username] = admin
	return nil
}

func (r *fakeAdminRepo) UpdateLastLogin(_ context.Context, id uint64, at time.Time) error {
	r.lastLogin[id] = at
	return nil
}

func (r *fakeAdminRepo) AutoMigrate() error { return nil }

func newAdminService(t *testing.T) (*fakeAdminRepo, AdminService) {
	t.Helper()
	security.Init(config.SecurityConfig{JWTSecret: "service-test", JWTExpireHour: 1})
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := newFakeAdminRepo()
	return repo, NewAdminService(repo, rdb)
}

func TestSeedThenLogin(t *testing.T) {
	ctx := context.Background()
	repo, svc := newAdminService(t)

	seed := config.AdminSeed{Username: "counsellor", Password: "ielts-band-8", DisplayName: "Anita"}
	if err := svc.SeedAdmin(ctx, seed); err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if err := svc.SeedAdmin(ctx, seed); err != nil {
		t.Fatalf("second SeedAdmin() error = %v", err)
	}
	if len(repo.admins) != 1 {
		t.Fatalf("admins = %d, want 1", len(repo.admins))
	}

	res, err := svc.Login(ctx, &dto.AdminLoginDTO{Username: "counsellor", Password: "ielts-band-8"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Admin.DisplayName != "Anita" || len(res.Admin.Roles) != 1 || res.Admin.Roles[0] != "ADMIN" {
		t.Errorf("admin = %+v", res.Admin)
	}
	claims, err := security.ValidateToken(res.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.AdminID != repo.admins["counsellor"].ID {
		t.Errorf("claims.AdminID = %d", claims.AdminID)
	}
	if _, ok := repo.lastLogin[claims.AdminID]; !ok {
		t.Error("last login not recorded")
	}
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	repo, svc := newAdminService(t)
	_ = svc.SeedAdmin(ctx, config.AdminSeed{Username: "staff", Password: "secret-pass"})

	cases := []struct {
		name string
		req  dto.AdminLoginDTO
		want error
	}{
		{"wrong password", dto.AdminLoginDTO{Username: "staff", Password: "nope-nope"}, ErrPasswordIncorrect},
		{"unknown user", dto.AdminLoginDTO{Username: "ghost", Password: "secret-pass"}, ErrPasswordIncorrect},
		{"empty", dto.AdminLoginDTO{}, ErrMissingLoginCredentials},
	}
	for _, tc := range cases {
		if _, err := svc.Login(ctx, &tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	repo.admins["staff"].IsDisabled = 1
	if _, err := svc.Login(ctx, &dto.AdminLoginDTO{Username: "staff", Password: "secret-pass"}); !errors.Is(err, ErrAdminDisabled) {
		t.Errorf("disabled: err = %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	_, svc := newAdminService(t)
	_ = svc.SeedAdmin(ctx, config.AdminSeed{Username: "staff", Password: "secret-pass"})
	res, _ := svc.Login(ctx, &dto.AdminLoginDTO{Username: "staff", Password: "secret-pass"})

	if revoked, err := svc.IsTokenRevoked(ctx, res.Token); err != nil || revoked {
		t.Fatalf("IsTokenRevoked() before logout = %v, %v", revoked, err)
	}
	if err := svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if revoked, _ := svc.IsTokenRevoked(ctx, res.Token); !revoked {
		t.Error("token still valid after logout")
	}
}

func TestSplitRoles(t *testing.T) {
	got := splitRoles(" admin, supervisor ,,")
	if strings.Join(got, ",") != "ADMIN,SUPERVISOR" {
		t.Errorf("splitRoles = %v", got)
	}
	if got = splitRoles(""); len(got) != 1 || got[0] != "ADMIN" {
		t.Errorf("splitRoles(\"\") = %v", got)
	}
}

// stubStore 只实现用到的方法，其余调用会 panic
type stubStore struct {
	chat.SessionStore
	sessions map[string]*model.ChatSession
	messages map[string][]*model.ChatMessage
	closed   []string
}

func (s *stubStore) GetSession(_ context.Context, id string) (*model.ChatSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, chat.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *stubStore) GetMessages(_ context.Context, id string) ([]*model.ChatMessage, error) {
	return s.messages[id], nil
}

func (s *stubStore) ListSessions(_ context.Context, status model.SessionStatus) ([]*model.ChatSession, error) {
	var out []*model.ChatSession
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

func (s *stubStore) CloseSession(_ context.Context, id string) error {
	if _, ok := s.sessions[id]; !ok {
		return chat.ErrSessionNotFound
	}
	s.closed = append(s.closed, id)
	return nil
}

func newStubStore() *stubStore {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &stubStore{
		sessions: map[string]*model.ChatSession{
			"s1": {ID: "s1", VisitorID: "visitor_1", VisitorName: "Priya", VisitorEmail: "priya@example.com",
				Status: model.SessionActive, CreatedAt: t0, LastMessageAt: t0.Add(time.Minute)},
			"s2": {ID: "s2", VisitorID: "visitor_2", Status: model.SessionClosed, CreatedAt: t0, LastMessageAt: t0},
		},
		messages: map[string][]*model.ChatMessage{
			"s1": {
				{ID: "m2", SessionID: "s1", Message: "We run weekend batches.", SenderName: "Anita", IsFromAdmin: true, CreatedAt: t0.Add(time.Minute)},
				{ID: "m1", SessionID: "s1", Message: "Do you have IELTS classes?", SenderName: "Priya", CreatedAt: t0},
			},
		},
	}
}

type fakeObjects struct {
	uploaded map[string][]byte
	failSign bool
}

func (f *fakeObjects) ObjectKey(sessionID string, createdAt time.Time) string {
	return "transcripts/" + createdAt.Format("2006/01") + "/" + sessionID + ".txt"
}

func (f *fakeObjects) Upload(_ context.Context, key string, content []byte, _ string) (string, error) {
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[key] = content
	return key, nil
}

func (f *fakeObjects) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.failSign {
		return "", errors.New("sign failed")
	}
	return "https://minio.local/" + key + "?sig=x", nil
}

func TestTranscriptExport(t *testing.T) {
	ctx := context.Background()
	objects := &fakeObjects{}
	svc := NewTranscriptService(newStubStore(), objects, 10*time.Minute)

	res, err := svc.Export(ctx, "s1")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.ObjectKey != "transcripts/2026/03/s1.txt" || !strings.HasPrefix(res.URL, "https://minio.local/transcripts/2026/03/s1.txt") {
		t.Errorf("result = %+v", res)
	}

	body := string(objects.uploaded[res.ObjectKey])
	first := strings.Index(body, "Do you have IELTS classes?")
	second := strings.Index(body, "Anita (staff): We run weekend batches.")
	if first < 0 || second < 0 || first > second {
		t.Errorf("transcript out of order or incomplete:\n%s", body)
	}
	if !strings.Contains(body, "<priya@example.com>") {
		t.Errorf("visitor contact missing:\n%s", body)
	}

	if _, err = svc.Export(ctx, "s2"); !errors.Is(err, ErrTranscriptEmpty) {
		t.Errorf("Export(empty) err = %v", err)
	}
	if _, err = svc.Export(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Errorf("Export(missing) err = %v", err)
	}
}

type stubSearch struct {
	gotKeyword string
	gotSize    int
	hits       []*es.ChatMessageES
}

func (s *stubSearch) IndexMessage(context.Context, *es.ChatMessageES) error { return nil }

func (s *stubSearch) SearchMessages(_ context.Context, keyword, _ string, _, size int) ([]*es.ChatMessageES, error) {
	s.gotKeyword, s.gotSize = keyword, size
	return s.hits, nil
}

func TestChatServiceQueries(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	search := &stubSearch{hits: []*es.ChatMessageES{{ID: "m1", SessionID: "s1", Message: "IELTS", SenderName: "Priya"}}}
	svc := NewChatService(store, search)

	sessions, err := svc.ListSessions(ctx, "")
	if err != nil || len(sessions) != 1 || sessions[0].ID != "s1" || sessions[0].VisitorName != "Priya" {
		t.Fatalf("ListSessions() = %+v, %v", sessions, err)
	}
	if _, err = svc.ListSessions(ctx, "archived"); !errors.Is(err, ErrParamInvalid) {
		t.Errorf("ListSessions(bad status) err = %v", err)
	}

	msgs, err := svc.GetMessages(ctx, "s1")
	if err != nil || len(msgs) != 2 {
		t.Fatalf("GetMessages() = %d, %v", len(msgs), err)
	}
	if _, err = svc.GetMessages(ctx, "nope"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Errorf("GetMessages(missing) err = %v", err)
	}

	if err = svc.CloseSession(ctx, "s1"); err != nil || len(store.closed) != 1 {
		t.Errorf("CloseSession() = %v, closed %v", err, store.closed)
	}

	hits, err := svc.SearchMessages(ctx, &dto.ChatSearchQuery{Keyword: "  IELTS "})
	if err != nil || len(hits) != 1 || hits[0].SenderName != "Priya" {
		t.Fatalf("SearchMessages() = %+v, %v", hits, err)
	}
	if search.gotKeyword != "IELTS" || search.gotSize != defaultSearchSize {
		t.Errorf("search called with %q size %d", search.gotKeyword, search.gotSize)
	}

	noSearch := NewChatService(store, nil)
	if _, err = noSearch.SearchMessages(ctx, &dto.ChatSearchQuery{Keyword: "x"}); !errors.Is(err, ErrSearchUnavailable) {
		t.Errorf("SearchMessages(no es) err = %v", err)
	}
}

func TestLookupCodeUnwraps(t *testing.T) {
	wrapped := errors.Join(errors.New("mongo"), chat.ErrSessionNotFound)
	code, sentinel, ok := LookupCode(wrapped)
	if !ok || code != NotFound || sentinel != chat.ErrSessionNotFound {
		t.Errorf("LookupCode() = %d, %v, %v", code, sentinel, ok)
	}
	if _, _, ok = LookupCode(errors.New("other")); ok {
		t.Error("unknown error matched")
	}
}
