package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"chessrelay/internal/live"
	"chessrelay/internal/match"
	"chessrelay/pkg/matchdto"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	matches := match.NewController(match.NewMemoryStore())
	liveMgr := live.NewManager(rdb, matches, 12*time.Second, 180*time.Second)
	return New(matches, liveMgr).Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Player-Token", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code
}

func createMatch(t *testing.T, router *gin.Engine, playWhite bool, secret string) matchdto.CreateMatchResponse {
	t.Helper()
	var resp matchdto.CreateMatchResponse
	code := doJSON(t, router, http.MethodPost, "/api/match", "",
		matchdto.CreateMatchRequest{PlayWhite: playWhite, JoinSecret: secret}, &resp)
	if code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}
	if resp.MatchID == "" || resp.PlayerToken == "" {
		t.Fatalf("create returned incomplete response: %+v", resp)
	}
	return resp
}

func joinMatch(t *testing.T, router *gin.Engine, matchID, secret string) matchdto.JoinMatchResponse {
	t.Helper()
	var resp matchdto.JoinMatchResponse
	code := doJSON(t, router, http.MethodPost, "/api/match/"+matchID+"/join", "",
		matchdto.JoinMatchRequest{JoinSecret: secret}, &resp)
	if code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}
	return resp
}

func TestCreateThenStatus(t *testing.T) {
	router := newTestRouter(t)

	created := createMatch(t, router, true, "")
	var status matchdto.StatusResponse
	code := doJSON(t, router, http.MethodGet, "/api/match/"+created.MatchID+"/status", "", nil, &status)
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if status.Status != string(match.StatusWaiting) {
		t.Fatalf("expected WAITING_FOR_OPPONENT, got %s", status.Status)
	}
}

func TestUnknownMatchGetsGenericError(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/match/BOGUS123/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body matchdto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != matchdto.GenericNotFoundMessage {
		t.Fatalf("error body leaks detail: %q", body.Error)
	}
}

func TestJoinSecretEnforced(t *testing.T) {
	router := newTestRouter(t)
	created := createMatch(t, router, true, "hunter2")

	code := doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/join", "",
		matchdto.JoinMatchRequest{JoinSecret: "wrong"}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong secret, got %d", code)
	}
	joined := joinMatch(t, router, created.MatchID, "hunter2")
	if joined.PlayWhite {
		t.Fatalf("guest must take black when host plays white")
	}
	if joined.Status != string(match.StatusActive) {
		t.Fatalf("expected ACTIVE after join, got %s", joined.Status)
	}
}

func TestMoveRequiresToken(t *testing.T) {
	router := newTestRouter(t)
	created := createMatch(t, router, true, "")
	joinMatch(t, router, created.MatchID, "")

	code := doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/move", "",
		matchdto.MoveRequest{From: "e2", To: "e4"}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("tokenless move should render the generic 404, got %d", code)
	}
	// A valid token from a different match must not authorize either.
	other := createMatch(t, router, true, "")
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/move", other.PlayerToken,
		matchdto.MoveRequest{From: "e2", To: "e4"}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("cross-match token should render the generic 404, got %d", code)
	}
}

func TestMoveFlow(t *testing.T) {
	router := newTestRouter(t)
	created := createMatch(t, router, true, "")
	joined := joinMatch(t, router, created.MatchID, "")

	// Guest tries to move first: soft rejection, not an HTTP error.
	var rejected matchdto.MoveResponse
	code := doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/move", joined.PlayerToken,
		matchdto.MoveRequest{From: "e2", To: "e4"}, &rejected)
	if code != http.StatusOK || rejected.OK {
		t.Fatalf("out-of-turn move: code=%d resp=%+v", code, rejected)
	}

	var accepted matchdto.MoveResponse
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/move", created.PlayerToken,
		matchdto.MoveRequest{From: "e2", To: "e4"}, &accepted)
	if code != http.StatusOK || !accepted.OK {
		t.Fatalf("host opening move: code=%d resp=%+v", code, accepted)
	}
	if accepted.Ply != 1 || accepted.Status != string(live.StatusActive) {
		t.Fatalf("unexpected move response: %+v", accepted)
	}

	var report matchdto.CheckInResponse
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/checkin", joined.PlayerToken, nil, &report)
	if code != http.StatusOK {
		t.Fatalf("checkin: %d", code)
	}
	if !report.YourTurn || report.FEN == "" {
		t.Fatalf("guest check-in after host's move: %+v", report)
	}

	var illegal matchdto.MoveResponse
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/move", joined.PlayerToken,
		matchdto.MoveRequest{From: "e7", To: "e3"}, &illegal)
	if code != http.StatusOK || illegal.OK || illegal.Reason == "" {
		t.Fatalf("illegal move should be a soft rejection: code=%d resp=%+v", code, illegal)
	}
}

func TestCancelBeforeJoin(t *testing.T) {
	router := newTestRouter(t)
	created := createMatch(t, router, true, "")

	code := doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/cancel", created.PlayerToken, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("cancel: %d", code)
	}
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/join", "",
		matchdto.JoinMatchRequest{}, nil)
	if code != http.StatusConflict {
		t.Fatalf("join after cancel should conflict, got %d", code)
	}

	// Cancel is host-only and WAITING-only.
	second := createMatch(t, router, true, "")
	joined := joinMatch(t, router, second.MatchID, "")
	code = doJSON(t, router, http.MethodPost, "/api/match/"+second.MatchID+"/cancel", joined.PlayerToken, nil, nil)
	if code != http.StatusConflict {
		t.Fatalf("guest cancel of an active match should conflict, got %d", code)
	}
}

func TestResignEndsMatch(t *testing.T) {
	router := newTestRouter(t)
	created := createMatch(t, router, true, "")
	joined := joinMatch(t, router, created.MatchID, "")

	code := doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/resign", joined.PlayerToken, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("resign: %d", code)
	}
	var report matchdto.CheckInResponse
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/checkin", created.PlayerToken, nil, &report)
	if code != http.StatusOK {
		t.Fatalf("checkin after resign: %d", code)
	}
	if report.Status != string(live.StatusResigned) || !report.DidWin {
		t.Fatalf("winner's view after opponent resigned: %+v", report)
	}
	code = doJSON(t, router, http.MethodPost, "/api/match/"+created.MatchID+"/resign", created.PlayerToken, nil, nil)
	if code != http.StatusConflict {
		t.Fatalf("resign after game over should conflict, got %d", code)
	}

	var status matchdto.StatusResponse
	doJSON(t, router, http.MethodGet, "/api/match/"+created.MatchID+"/status", "", nil, &status)
	if status.Status != string(match.StatusCompleted) {
		t.Fatalf("lifecycle record should read COMPLETED, got %s", status.Status)
	}
}
