package kubernetes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/aython/pkg/sandbox"
	"github.com/rhuss/aython/pkg/sandbox/remote"
)

func fakeClient(t *testing.T) client.Client {
	t.Helper()
	scheme, err := NewScheme()
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	return fake.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&sandboxv1alpha1.Sandbox{}).
		Build()
}

func fixedNames(t *testing.T, names ...string) {
	t.Helper()
	var mu sync.Mutex
	i := 0
	orig := claimName
	claimName = func() string {
		mu.Lock()
		defer mu.Unlock()
		n := names[i%len(names)]
		i++
		return n
	}
	t.Cleanup(func() { claimName = orig })
}

// markReady plays the controller: it creates the Sandbox for a claim and
// sets its Ready condition.
func markReady(t *testing.T, c client.Client, name, fqdn string) {
	t.Helper()
	ctx := context.Background()
	sb := &sandboxv1alpha1.Sandbox{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "runs"}}
	if err := c.Create(ctx, sb); err != nil {
		t.Errorf("creating Sandbox %s: %v", name, err)
		return
	}

	sb.Status = sandboxv1alpha1.SandboxStatus{
		ServiceFQDN: fqdn,
		Conditions: []metav1.Condition{{
			Type:               string(sandboxv1alpha1.SandboxConditionReady),
			Status:             metav1.ConditionTrue,
			LastTransitionTime: metav1.Now(),
			Reason:             "Ready",
		}},
	}
	if err := c.Status().Update(ctx, sb); err != nil {
		t.Errorf("updating Sandbox %s status: %v", name, err)
	}
}

func claimExists(c client.Client, name string) bool {
	var claim extensionsv1alpha1.SandboxClaim
	return c.Get(context.Background(), client.ObjectKey{Name: name, Namespace: "runs"}, &claim) == nil
}

func TestNew_RequiresTemplate(t *testing.T) {
	if _, err := New(fakeClient(t), Config{}); err == nil {
		t.Error("New without a template should fail")
	}
}

func TestAcquire_Release(t *testing.T) {
	c := fakeClient(t)
	fixedNames(t, "run-1")
	claims, err := New(c, Config{Template: "python-sandbox", Namespace: "runs", ReadyTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		markReady(t, c, "run-1", "run-1.runs.svc.cluster.local")
	}()

	url, release, err := claims.Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if url != "http://run-1.runs.svc.cluster.local:8080" {
		t.Errorf("url = %q", url)
	}

	var claim extensionsv1alpha1.SandboxClaim
	if err := c.Get(t.Context(), client.ObjectKey{Name: "run-1", Namespace: "runs"}, &claim); err != nil {
		t.Fatalf("getting claim: %v", err)
	}
	if claim.Spec.TemplateRef.Name != "python-sandbox" {
		t.Errorf("template = %q", claim.Spec.TemplateRef.Name)
	}

	release()
	if claimExists(c, "run-1") {
		t.Error("claim run-1 still exists after release")
	}
}

func TestAcquire_TimeoutDeletesClaim(t *testing.T) {
	c := fakeClient(t)
	fixedNames(t, "run-timeout")
	claims, err := New(c, Config{Template: "python-sandbox", Namespace: "runs", ReadyTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _, err = claims.Acquire(t.Context())
	if err == nil || !strings.Contains(err.Error(), "waiting for Sandbox run-timeout") {
		t.Fatalf("err = %v, want wait timeout", err)
	}
	if claimExists(c, "run-timeout") {
		t.Error("claim run-timeout still exists")
	}
}

func TestAcquire_CancelDeletesClaim(t *testing.T) {
	c := fakeClient(t)
	fixedNames(t, "run-cancel")
	claims, err := New(c, Config{Template: "python-sandbox", Namespace: "runs", ReadyTimeout: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	if _, _, err = claims.Acquire(ctx); err == nil {
		t.Fatal("Acquire succeeded without a ready Sandbox")
	}
	if claimExists(c, "run-cancel") {
		t.Error("claim run-cancel still exists")
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	c := fakeClient(t)
	fixedNames(t, "run-a", "run-b", "run-c")
	claims, err := New(c, Config{Template: "python-sandbox", Namespace: "runs", ReadyTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		for _, n := range []string{"run-a", "run-b", "run-c"} {
			markReady(t, c, n, n+".runs.svc")
		}
	}()

	var wg sync.WaitGroup
	urls := make([]string, 3)
	for i := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, release, err := claims.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			urls[i] = url
			release()
		}()
	}
	wg.Wait()

	for _, u := range urls {
		if !strings.HasSuffix(u, ".runs.svc:8080") {
			t.Errorf("url = %q", u)
		}
	}
}

func TestClaims_WithRemoteSandbox(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","stdout":"hi\n","stderr":"","exit_code":0,"execution_time_ms":3}`)
	}))
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	hostname, port, _ := strings.Cut(host, ":")
	var portNum int
	fmt.Sscanf(port, "%d", &portNum)

	c := fakeClient(t)
	fixedNames(t, "run-e2e")
	claims, err := New(c, Config{Template: "python-sandbox", Namespace: "runs", ReadyTimeout: 5 * time.Second, Port: portNum})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		markReady(t, c, "run-e2e", hostname)
	}()

	sb, err := remote.New(remote.Config{Acquirer: claims})
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}

	res := sb.Execute(t.Context(), &sandbox.Request{Code: "print('hi')"})
	if res.ExitCode != 0 || res.Stdout != "hi\n" {
		t.Errorf("result = %+v", res)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
	if claimExists(c, "run-e2e") {
		t.Error("claim run-e2e still exists")
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		conditions []metav1.Condition
		want       bool
	}{
		{"no conditions", nil, false},
		{"ready", []metav1.Condition{{Type: string(sandboxv1alpha1.SandboxConditionReady), Status: metav1.ConditionTrue}}, true},
		{"not ready", []metav1.Condition{{Type: string(sandboxv1alpha1.SandboxConditionReady), Status: metav1.ConditionFalse}}, false},
		{"other condition", []metav1.Condition{{Type: "Available", Status: metav1.ConditionTrue}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := &sandboxv1alpha1.Sandbox{Status: sandboxv1alpha1.SandboxStatus{Conditions: tt.conditions}}
			if got := Ready(sb); got != tt.want {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}
