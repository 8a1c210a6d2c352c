package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestTokenAuthMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "верный токен", token: "s3cret", header: "Bearer s3cret", want: http.StatusNoContent},
		{name: "неверный токен", token: "s3cret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "без схемы", token: "s3cret", header: "s3cret", want: http.StatusUnauthorized},
		{name: "пустой токен сервера", token: "", header: "Bearer ", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tc.header)
			rec := httptest.NewRecorder()
			TokenAuthMiddleware(tc.token)(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("ожидали %d, получили %d", tc.want, rec.Code)
			}
		})
	}
}

func TestSecretTokenMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", nil)
	rec := httptest.NewRecorder()
	SecretTokenMiddleware("abc")(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("без секрета ожидали 401, получили %d", rec.Code)
	}

	req.Header.Set(TelegramSecretHeader, "abc")
	rec = httptest.NewRecorder()
	SecretTokenMiddleware("abc")(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("с секретом ожидали 204, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	SecretTokenMiddleware("")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("без настроенного секрета проверка отключена, получили %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("неожиданный ответ healthz: %d %q", rec.Code, rec.Body.String())
	}
}
