package remote

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tankbridge/pkg/telemetry"
)

func TestPushSendsFormFields(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		gotForm = map[string]string{
			"upper_percent": r.PostFormValue("upper_percent"),
			"pump_percent":  r.PostFormValue("pump_percent"),
			"lower_percent": r.PostFormValue("lower_percent"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, srv.URL, 2*time.Second)
	err := s.Push(telemetry.Sample{
		UpperPercent: 37.5,
		LowerPercent: 0,
		PumpPercent:  41.25,
		Setpoint:     85,
	})
	if err != nil {
		t.Fatalf("Push returned error: %v", err)
	}

	if gotForm["upper_percent"] != "37.5" {
		t.Errorf("upper_percent = %q, want 37.5", gotForm["upper_percent"])
	}
	if gotForm["pump_percent"] != "41.25" {
		t.Errorf("pump_percent = %q, want 41.25", gotForm["pump_percent"])
	}
	if gotForm["lower_percent"] != "0" {
		t.Errorf("lower_percent = %q, want 0", gotForm["lower_percent"])
	}
}

func TestPushReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, srv.URL, 2*time.Second)
	if err := s.Push(telemetry.Sample{}); err == nil {
		t.Error("Push should report non-2xx status")
	}
}

func TestPushReportsNetworkError(t *testing.T) {
	s := New("http://127.0.0.1:1/post", "http://127.0.0.1:1/get", 100*time.Millisecond)
	if err := s.Push(telemetry.Sample{}); err == nil {
		t.Error("Push should report network error")
	}
}

func TestPullChangedSetpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"setpoint": 90.0}`))
	}))
	defer srv.Close()

	s := New(srv.URL, srv.URL, 2*time.Second)
	v, changed, err := s.Pull(85.0)
	if err != nil {
		t.Fatalf("Pull returned error: %v", err)
	}
	if !changed || v != 90.0 {
		t.Errorf("Pull = (%v, %v), want (90.0, true)", v, changed)
	}
}

func TestPullSameSetpointIsNoChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"setpoint": 85.0}`))
	}))
	defer srv.Close()

	s := New(srv.URL, srv.URL, 2*time.Second)
	v, changed, err := s.Pull(85.0)
	if err != nil {
		t.Fatalf("Pull returned error: %v", err)
	}
	if changed || v != 85.0 {
		t.Errorf("Pull = (%v, %v), want (85.0, false)", v, changed)
	}
}

func TestPullMissingFieldIsNoChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"other": 1}`))
	}))
	defer srv.Close()

	s := New(srv.URL, srv.URL, 2*time.Second)
	if _, changed, err := s.Pull(85.0); err != nil || changed {
		t.Errorf("Pull = (changed=%v, err=%v), want no change and no error", changed, err)
	}
}

func TestPullFailuresAreNoChange(t *testing.T) {
	badBody := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer badBody.Close()

	s := New(badBody.URL, badBody.URL, 2*time.Second)
	if v, changed, err := s.Pull(85.0); err == nil || changed || v != 85.0 {
		t.Errorf("Pull on malformed body = (%v, %v, %v), want (85.0, false, error)", v, changed, err)
	}

	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	s = New(notFound.URL, notFound.URL, 2*time.Second)
	if v, changed, err := s.Pull(85.0); err == nil || changed || v != 85.0 {
		t.Errorf("Pull on 404 = (%v, %v, %v), want (85.0, false, error)", v, changed, err)
	}
}
