package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports whether the settings database and the production database
// answer a ping. Production is optional: a nil pinger is skipped.
func Health(db, production pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok", "database": "ok"}
		code := http.StatusOK

		if err := db.PingContext(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
		if production != nil {
			resp["production"] = "ok"
			if err := production.PingContext(r.Context()); err != nil {
				resp["status"] = "degraded"
				resp["production"] = "unreachable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
