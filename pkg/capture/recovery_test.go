package capture

import "testing"

func TestRecovery_RestartOncePerThreshold(t *testing.T) {
	r := NewRecovery(Policy{PermanentThreshold: 3, MaxRestarts: 100})

	restarts := 0
	for i := 1; i <= 9; i++ {
		var action Action
		r, action = r.OnPermanent()
		if action == ActionRestart {
			restarts++
			r = r.OnRestarted()
		}
		if want := i / 3; restarts != want {
			t.Fatalf("after %d errors: %d restarts, want %d", i, restarts, want)
		}
	}
}

func TestRecovery_SuccessResetsPermanentCount(t *testing.T) {
	r := NewRecovery(DefaultPolicy())

	steps := []string{"fail", "fail", "ok", "fail", "fail"}
	for _, step := range steps {
		if step == "ok" {
			r = r.OnSuccess()
			continue
		}
		var action Action
		r, action = r.OnPermanent()
		if action != ActionNone {
			t.Fatalf("unexpected action %v after step sequence %v", action, steps)
		}
	}
	if r.Permanent != 2 {
		t.Errorf("Permanent = %d, want 2", r.Permanent)
	}
	if r.Phase != PhaseDegraded {
		t.Errorf("Phase = %v, want degraded", r.Phase)
	}
}

func TestRecovery_TransientNeverCountsAsPermanent(t *testing.T) {
	r := NewRecovery(DefaultPolicy())
	for i := 0; i < 50; i++ {
		r = r.OnTransient()
	}
	if r.Permanent != 0 || r.Phase != PhaseRunning {
		t.Errorf("after transients: permanent=%d phase=%v", r.Permanent, r.Phase)
	}
	if r.Transient != 50 {
		t.Errorf("Transient = %d, want 50", r.Transient)
	}
}

func TestRecovery_TerminatesAfterMaxRestarts(t *testing.T) {
	policy := DefaultPolicy()
	r := NewRecovery(policy)

	restarts, terminations := 0, 0
	for i := 0; i < 100; i++ {
		var action Action
		r, action = r.OnPermanent()
		switch action {
		case ActionRestart:
			restarts++
			r = r.OnRestarted()
		case ActionTerminate:
			terminations++
		}
	}

	if restarts != policy.MaxRestarts {
		t.Errorf("restarts = %d, want %d", restarts, policy.MaxRestarts)
	}
	if terminations != 1 {
		t.Errorf("terminations = %d, want 1", terminations)
	}
	if r.Phase != PhaseTerminated {
		t.Errorf("Phase = %v, want terminated", r.Phase)
	}
}

func TestRecovery_RestartCountSurvivesSuccess(t *testing.T) {
	r := NewRecovery(Policy{PermanentThreshold: 1, MaxRestarts: 2})

	r, _ = r.OnPermanent()
	r = r.OnRestarted().OnSuccess()
	r, _ = r.OnPermanent()
	r = r.OnRestarted().OnSuccess()

	if r.Restarts != 2 {
		t.Fatalf("Restarts = %d, want 2", r.Restarts)
	}
	if _, action := r.OnPermanent(); action != ActionTerminate {
		t.Errorf("action = %v, want terminate", action)
	}
}

func TestRecovery_RestartFailedIsTerminal(t *testing.T) {
	r := NewRecovery(Policy{PermanentThreshold: 1, MaxRestarts: 5})
	r, action := r.OnPermanent()
	if action != ActionRestart {
		t.Fatalf("action = %v, want restart", action)
	}

	r, action = r.OnRestartFailed()
	if action != ActionTerminate || r.Phase != PhaseTerminated {
		t.Fatalf("OnRestartFailed = (%v, %v), want terminate", r.Phase, action)
	}
	if _, action = r.OnRestartFailed(); action != ActionNone {
		t.Errorf("second OnRestartFailed action = %v, want none", action)
	}
	if r.OnSuccess().Phase != PhaseTerminated {
		t.Error("success revived a terminated session")
	}
}
