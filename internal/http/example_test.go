package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/bandit"
	"github.com/fyrsmithlabs/modelrouter/internal/cache"
	"github.com/fyrsmithlabs/modelrouter/internal/config"
	httpserver "github.com/fyrsmithlabs/modelrouter/internal/http"
	"github.com/fyrsmithlabs/modelrouter/internal/routing"
)

// A select followed by a reward for the returned decision.
func ExampleServer_Handler() {
	live := config.NewLive(config.DefaultRouterConfig())
	caches := cache.NewManager(nil)
	defer caches.Close()

	svc, err := routing.NewService(bandit.NewThompson(live), nil, live, caches, config.Default().Cache)
	if err != nil {
		panic(err)
	}
	srv, err := httpserver.NewServer(svc, caches, zap.NewNop(), &httpserver.Config{Host: "127.0.0.1", Port: 0})
	if err != nil {
		panic(err)
	}
	h := srv.Handler()

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/api/v1/select", `{"arms": ["gpt-4.1-mini"]}`)
	var sel httpserver.SelectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sel); err != nil {
		panic(err)
	}
	fmt.Println(rec.Code, sel.Router, sel.Arm)

	rec = post("/api/v1/reward", fmt.Sprintf(`{"decision_id": %q, "reward": 1}`, sel.DecisionID))
	fmt.Println(rec.Code)
	// Output:
	// 200 thompson gpt-4.1-mini
	// 204
}
