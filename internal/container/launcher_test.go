package container

import "testing"

func TestParseOutputMarkerDelimited(t *testing.T) {
	stdout := "ignored preamble\n" +
		outputStartMarker + "\n" +
		`{"status":"success","result":"done","new_session_id":"sess-1"}` + "\n" +
		outputEndMarker + "\ntrailing noise"

	result := parseOutput(stdout, "")
	if result.Status != "success" || result.Result != "done" || result.NewSessionID != "sess-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseOutputBareJSON(t *testing.T) {
	stdout := `  {"status":"error","error":"boom"}  `

	result := parseOutput(stdout, "")
	if result.Status != "error" || result.Error != "boom" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseOutputRawTextFallsBackToSuccess(t *testing.T) {
	stdout := "just some plain text, not json at all"

	result := parseOutput(stdout, "")
	if result.Status != "success" || result.Result != stdout {
		t.Fatalf("expected raw stdout treated as a successful result, got %+v", result)
	}
}

func TestParseOutputEmptyStdoutFallsBackToStderr(t *testing.T) {
	result := parseOutput("", "  container panicked  ")
	if result.Status != "error" || result.Error != "container panicked" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseOutputEmptyStdoutAndStderrReportsNoOutput(t *testing.T) {
	result := parseOutput("   ", "   ")
	if result.Status != "error" || result.Error != "no output" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseOutputMarkerRegionInvalidJSONFallsThrough(t *testing.T) {
	stdout := outputStartMarker + "\nnot valid json\n" + outputEndMarker

	result := parseOutput(stdout, "")
	if result.Status != "success" || result.Result != stdout {
		t.Fatalf("expected fallback to raw-text success when marker region isn't valid JSON, got %+v", result)
	}
}

func TestBuildArgsAppliesDefaultsAndOverrides(t *testing.T) {
	l := &Launcher{Image: "ngb-agent:latest"}
	args := l.buildArgs("ngb-test", nil, nil)

	if !containsPair(args, "--memory=2g") {
		t.Fatalf("expected default memory limit, got %v", args)
	}
	if !containsPair(args, "--cpus=1.0") {
		t.Fatalf("expected default cpu limit, got %v", args)
	}

	l = &Launcher{Image: "ngb-agent:latest", MemLimit: "4g", CPULimit: "2.0"}
	args = l.buildArgs("ngb-test", nil, nil)
	if !containsPair(args, "--memory=4g") {
		t.Fatalf("expected overridden memory limit, got %v", args)
	}
	if !containsPair(args, "--cpus=2.0") {
		t.Fatalf("expected overridden cpu limit, got %v", args)
	}
}

func containsPair(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
