package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"pumpconsole/pkg/domain"
)

func TestListAttachesBearerAndDefaultQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/machines/pumps" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer T" {
			t.Errorf("authorization header = %q", got)
		}
		q := r.URL.Query()
		for key, want := range map[string]string{"page": "1", "limit": "10", "sort_by": "created_at", "sort_order": "desc"} {
			if got := q.Get(key); got != want {
				t.Errorf("query %s = %q, want %q", key, got, want)
			}
		}
		if q.Has("search") {
			t.Errorf("empty search should not be sent")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []domain.Machine{{ID: "m1", PartNo: "P1", ModelNo: "M1"}},
			"total": 21,
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/"})
	client.SetToken("T")
	page, err := client.ListPumps(context.Background(), domain.ListParams{})
	if err != nil {
		t.Fatalf("list pumps: %v", err)
	}
	if page.Total != 21 || len(page.Items) != 1 || page.Items[0].ID != "m1" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Page != 1 || page.Limit != 10 {
		t.Fatalf("page defaults not filled: %+v", page)
	}
}

func TestNoBearerWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`{"items":[],"total":0}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	client.SetToken("T")
	client.ClearToken()
	if _, err := client.ListAdmins(context.Background(), domain.ListParams{}); err != nil {
		t.Fatalf("list admins: %v", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		kind     Kind
		message  string
		fieldLen int
	}{
		{name: "validation detail array", status: http.StatusUnprocessableEntity,
			body: `{"detail":[{"loc":["body","email"],"msg":"invalid email"},{"loc":["body","name"],"msg":"too short"}]}`,
			kind: KindValidation, message: "invalid email, too short", fieldLen: 2},
		{name: "bad request with field errors", status: http.StatusBadRequest,
			body: `{"errors":[{"field":"serial_no","message":"required"}]}`,
			kind: KindValidation, message: "required", fieldLen: 1},
		{name: "auth", status: http.StatusUnauthorized, body: `{"detail":"token expired"}`,
			kind: KindAuth, message: "token expired"},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"no such machine"}`,
			kind: KindNotFound, message: "no such machine"},
		{name: "remote error field", status: http.StatusInternalServerError, body: `{"error":"boom"}`,
			kind: KindRemote, message: "boom"},
		{name: "empty body uses status text", status: http.StatusBadGateway, body: ``,
			kind: KindRemote, message: "502 Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL}).ListParts(context.Background(), domain.ListParams{})
			if err == nil {
				t.Fatalf("expected error")
			}
			apiErr, ok := err.(*APIError)
			if !ok {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", apiErr.Kind, tc.kind)
			}
			if apiErr.Message != tc.message {
				t.Fatalf("message = %q, want %q", apiErr.Message, tc.message)
			}
			if len(apiErr.Fields) != tc.fieldLen {
				t.Fatalf("fields = %+v", apiErr.Fields)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: addr}).ListPumps(context.Background(), domain.ListParams{})
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if Message(err, "") != "Network error" {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}
}

func TestHooksRunForAuthenticatedRequestsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh-token":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"refresh expired"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"expired"}`))
		}
	}))
	defer srv.Close()

	var before, unauthorized int32
	client := NewClient(Config{BaseURL: srv.URL})
	client.SetHooks(func(context.Context) { atomic.AddInt32(&before, 1) },
		func(context.Context) { atomic.AddInt32(&unauthorized, 1) })

	if _, err := client.Statistics(context.Background()); !IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, err := client.RefreshToken(context.Background(), "R"); !IsAuth(err) {
		t.Fatalf("expected auth error from refresh, got %v", err)
	}
	if atomic.LoadInt32(&before) != 1 || atomic.LoadInt32(&unauthorized) != 1 {
		t.Fatalf("hooks ran before=%d unauthorized=%d, want 1/1", before, unauthorized)
	}
}

func TestLoginRequiresSuccessAndSession(t *testing.T) {
	var succeed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			http.NotFound(w, r)
			return
		}
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode login: %v", err)
		}
		if req.Email != "a@b.com" || req.Password != "x" {
			t.Errorf("unexpected login payload %+v", req)
		}
		if !succeed.Load() {
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"user":{"id":"u1","name":"Ann","email":"a@b.com","role":"admin"},
			"session":{"access_token":"T","refresh_token":"R","expires_at":4102444800}}`))
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL})

	_, err := client.Login(context.Background(), LoginRequest{Email: "a@b.com", Password: "x"})
	if !IsAuth(err) || Message(err, "") != "Invalid credentials" {
		t.Fatalf("expected rejected login, got %v", err)
	}

	succeed.Store(true)
	resp, err := client.Login(context.Background(), LoginRequest{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.Role != domain.RoleAdmin || resp.Session.AccessToken != "T" || resp.Session.ExpiresAt != 4102444800 {
		t.Fatalf("unexpected login response %+v %+v", resp.User, resp.Session)
	}
}

func TestCreateServiceReportMultipart(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/service-reports" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("X-Idempotency-Key") != "key-1" {
			t.Errorf("missing idempotency key")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		for field, want := range map[string]string{
			"machine_id":          "m1",
			"machine_serial_no":   "SN-1",
			"service_type_id":     "2",
			"service_person_name": "Bob",
			"problem":             "leak",
			"solution":            "seal",
		} {
			if got := r.FormValue(field); got != want {
				t.Errorf("field %s = %q, want %q", field, got, want)
			}
		}
		var parts []domain.PartLine
		if err := json.Unmarshal([]byte(r.FormValue("parts")), &parts); err != nil {
			t.Errorf("parts json: %v", err)
		}
		if len(parts) != 1 || parts[0].PartID != "p1" || parts[0].Quantity != 2 {
			t.Errorf("unexpected parts %+v", parts)
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 1 || files[0].Filename != "photo.png" || files[0].Header.Get("Content-Type") != "image/png" {
			t.Errorf("unexpected files %+v", files)
		} else {
			f, _ := files[0].Open()
			data, _ := io.ReadAll(f)
			f.Close()
			if string(data) != "png-bytes" {
				t.Errorf("file body = %q", data)
			}
		}
		_, _ = w.Write([]byte(`{"success":true,"id":"r1"}`))
	}))
	defer srv.Close()

	report, err := NewClient(Config{BaseURL: srv.URL}).CreateServiceReport(context.Background(), ServiceReportInput{
		MachineID:         "m1",
		MachineSerialNo:   "SN-1",
		ServiceTypeID:     "2",
		ServicePersonName: "Bob",
		Problem:           "leak",
		Solution:          "seal",
		Parts:             []domain.PartLine{{PartID: "p1", Quantity: 2}},
		Files:             []FormFile{{Filename: "photo.png", ContentType: "image/png", Data: []byte("png-bytes")}},
		IdempotencyKey:    "key-1",
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if report.ID != "r1" {
		t.Fatalf("unexpected report %+v", report)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one POST, got %d", calls)
	}
}

func TestCreateServiceReportOmitsEmptyParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if _, ok := r.MultipartForm.Value["parts"]; ok {
			t.Errorf("parts should be omitted when empty")
		}
		_, _ = w.Write([]byte(`{"success":true,"service_report":{"id":"r2"}}`))
	}))
	defer srv.Close()

	report, err := NewClient(Config{BaseURL: srv.URL}).CreateServiceReport(context.Background(), ServiceReportInput{
		MachineID: "m1", ServiceTypeID: "1", ServicePersonName: "Bob", Problem: "p", Solution: "s",
	})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if report.ID != "r2" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestServiceTypesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	types := NewClient(Config{BaseURL: srv.URL}).ServiceTypes(context.Background())
	if len(types) != 3 || types[0].ServiceType != "Maintenance" || types[2].ID != "3" {
		t.Fatalf("unexpected fallback %+v", types)
	}
}

func TestMachineBySerialNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/service-reports/machine/SN-1":
			_, _ = w.Write([]byte(`{"success":true,"machine":{"id":"m1","serial_no":"SN-1","customer_name":"Acme"}}`))
		case "/service-reports/machine/SN-2":
			_, _ = w.Write([]byte(`{"success":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found"}`))
		}
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL})

	m, err := client.MachineBySerial(context.Background(), " SN-1 ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !m.HasCustomer() {
		t.Fatalf("expected customer on machine %+v", m)
	}
	for _, serial := range []string{"SN-2", "SN-3"} {
		_, err := client.MachineBySerial(context.Background(), serial)
		if !IsNotFound(err) || Message(err, "") != MsgMachineNotFound {
			t.Fatalf("serial %s: expected not found, got %v", serial, err)
		}
	}
}

func TestModelFromPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("part_no") == "P-1" {
			_, _ = w.Write([]byte(`{"model_no":"M-9"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL})

	model, err := client.ModelFromPart(context.Background(), "P-1")
	if err != nil || model != "M-9" {
		t.Fatalf("model = %q err = %v", model, err)
	}
	if _, err := client.ModelFromPart(context.Background(), "P-2"); !IsNotFound(err) || Message(err, "") != MsgModelNotFound {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestServiceReportPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/pdf" {
			t.Errorf("accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report_r1.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	doc, err := NewClient(Config{BaseURL: srv.URL}).ServiceReportPDF(context.Background(), "r1")
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if doc.Filename != "report_r1.pdf" || !strings.HasPrefix(string(doc.Data), "%PDF") {
		t.Fatalf("unexpected doc %+v", doc)
	}
	if pdfFilename("", "r2") != "service_report_r2.pdf" {
		t.Fatalf("unexpected default filename")
	}
}

func TestRegisterCustomerPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["machine_id"] != "m1" || body["customer_name"] != "Acme" || body["customer_address"] != "12 Long Street" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"success":true,"sold_machine":{"id":"m1","is_sold":true,"sold_info":{"customer_name":"Acme"}}}`))
	}))
	defer srv.Close()

	m, err := NewClient(Config{BaseURL: srv.URL}).RegisterCustomer(context.Background(), "m1", domain.Customer{
		CustomerName: "Acme", CustomerContact: "+1 555", CustomerEmail: "a@acme.io", CustomerAddress: "12 Long Street",
	})
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}
	if m == nil || !m.IsSold || !m.HasCustomer() {
		t.Fatalf("unexpected machine %+v", m)
	}
}

func TestCreateWithoutMachineInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"message":"Pump created"}`))
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL})
	ctx := context.Background()

	pump, err := client.CreatePump(ctx, MachineInput{SerialNo: "SN-7", PartNo: "P1", ModelNo: "M1"})
	if err != nil {
		t.Fatalf("create pump: %v", err)
	}
	if pump == nil || pump.PartNo != "P1" || pump.SerialNo != "SN-7" || pump.Type != domain.MachinePump {
		t.Fatalf("pump = %+v", pump)
	}

	customer := domain.Customer{CustomerName: "Acme", CustomerContact: "123", CustomerEmail: "a@acme.test", CustomerAddress: "1 Long Street"}
	sold, err := client.CreateSoldPump(ctx, SoldPumpInput{PartNo: "P1", ModelNo: "M1", Customer: customer})
	if err != nil {
		t.Fatalf("create sold pump: %v", err)
	}
	if sold == nil || !sold.IsSold || !sold.HasCustomer() || sold.SoldInfo.CustomerEmail != "a@acme.test" {
		t.Fatalf("sold pump = %+v", sold)
	}
}
