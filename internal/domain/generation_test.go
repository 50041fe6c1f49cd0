package domain

import "testing"

func TestGenerationTaskObserveProgressNeverDecreases(t *testing.T) {
	task := GenerationTask{Status: TaskStatusProcessing}
	steps := []struct {
		progress int
		want     int
	}{
		{progress: 10, want: 10},
		{progress: 40, want: 40},
		{progress: 25, want: 40},
		{progress: 140, want: 100},
		{progress: -3, want: 100},
	}
	for i, step := range steps {
		task.Observe(TaskStatusProcessing, step.progress, nil, "")
		if task.Progress != step.want {
			t.Fatalf("step %d: progress = %d, want %d", i, task.Progress, step.want)
		}
	}
}

func TestGenerationTaskObserveTerminalStates(t *testing.T) {
	task := GenerationTask{Status: TaskStatusProcessing, Progress: 30}
	task.Observe(TaskStatusCompleted, 0, []string{"https://cdn.example/a.png"}, "ignored")
	if task.Status != TaskStatusCompleted || task.Progress != 100 {
		t.Fatalf("unexpected completed state: %+v", task)
	}
	if task.Error != "" {
		t.Fatalf("completed task must not carry an error, got %q", task.Error)
	}
	if len(task.ResultURLs) != 1 {
		t.Fatalf("expected one result url, got %v", task.ResultURLs)
	}

	task.Observe(TaskStatusFailed, 0, nil, "late failure")
	if task.Status != TaskStatusCompleted {
		t.Fatalf("terminal task changed state to %q", task.Status)
	}

	failed := GenerationTask{Status: TaskStatusProcessing}
	failed.Observe(TaskStatusFailed, 50, []string{"https://cdn.example/b.png"}, "content policy")
	if failed.Status != TaskStatusFailed || failed.Error != "content policy" {
		t.Fatalf("unexpected failed state: %+v", failed)
	}
	if failed.ResultURLs != nil {
		t.Fatalf("failed task must not carry result urls, got %v", failed.ResultURLs)
	}
}

func TestGenerationTaskObserveClearsTimeout(t *testing.T) {
	task := GenerationTask{Status: TaskStatusProcessing, Progress: 60, TimedOut: true, Error: "generation timed out"}
	task.Observe(TaskStatusProcessing, 80, nil, "")
	if !task.TimedOut || task.Progress != 80 {
		t.Fatalf("progress snapshot must keep the timeout flag: %+v", task)
	}
	task.Observe(TaskStatusCompleted, 100, []string{"https://cdn.example/late.png"}, "")
	if task.TimedOut || task.Error != "" || task.Status != TaskStatusCompleted {
		t.Fatalf("late completion must clear the timeout: %+v", task)
	}
}

func TestGenerationTaskFallbackUsed(t *testing.T) {
	task := GenerationTask{RequestedModel: "nano-banana-pro", EffectiveModel: "nano-banana-pro"}
	if task.FallbackUsed() {
		t.Fatalf("same model must not count as fallback")
	}
	task.EffectiveModel = "google/nano-banana-edit"
	if !task.FallbackUsed() {
		t.Fatalf("expected fallback when models differ")
	}
}

func TestParsePlan(t *testing.T) {
	cases := map[string]Plan{
		"PRO":      PlanPro,
		" starter": PlanStarter,
		"business": PlanBusiness,
		"free":     PlanFree,
		"":         PlanFree,
		"gold":     PlanFree,
	}
	for in, want := range cases {
		if got := ParsePlan(in); got != want {
			t.Fatalf("ParsePlan(%q) = %q, want %q", in, got, want)
		}
	}
}
