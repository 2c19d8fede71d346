package mount

import (
	"path/filepath"
	"testing"
)

func testRoots() Roots {
	return Roots{
		GroupsDir: "/data/groups",
		DataDir:   "/data",
		StoreDir:  "/data",
		BaseDir:   "/app",
	}
}

func TestBuildFixedLayout(t *testing.T) {
	v := New(testRoots())

	specs, err := v.Build("group1", "telegram:1", false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("expected 4 fixed mounts for a non-main group, got %d", len(specs))
	}
	if specs[0].ContainerPath != "/workspace/group" || !specs[0].ReadWrite {
		t.Fatalf("unexpected first mount: %+v", specs[0])
	}
	if specs[1].ContainerPath != "/workspace/global" || specs[1].ReadWrite {
		t.Fatalf("unexpected global mount: %+v", specs[1])
	}
}

func TestBuildIncludesProjectMountWhenMain(t *testing.T) {
	v := New(testRoots())

	specs, err := v.Build("group1", "telegram:1", true, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(specs) != 5 {
		t.Fatalf("expected 5 mounts when isMain, got %d", len(specs))
	}
	last := specs[len(specs)-1]
	if last.ContainerPath != "/workspace/project" || last.ReadWrite {
		t.Fatalf("unexpected project mount: %+v", last)
	}
}

func TestBuildRejectsTraversal(t *testing.T) {
	v := New(testRoots())

	_, err := v.Build("group1", "telegram:1", false, []Additional{
		{HostPath: "/data/groups/../../etc/passwd", ContainerPath: "/workspace/evil", Mode: "ro"},
	})
	if err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestBuildRejectsNulByte(t *testing.T) {
	v := New(testRoots())

	_, err := v.Build("group1", "telegram:1", false, []Additional{
		{HostPath: "/data/groups/x\x00y", ContainerPath: "/workspace/evil", Mode: "ro"},
	})
	if err == nil {
		t.Fatal("expected NUL byte path to be rejected")
	}
}

func TestBuildRejectsDisallowedRoot(t *testing.T) {
	v := New(testRoots())

	_, err := v.Build("group1", "telegram:1", false, []Additional{
		{HostPath: "/etc/passwd", ContainerPath: "/workspace/evil", Mode: "ro"},
	})
	if err == nil {
		t.Fatal("expected path outside allowed roots to be rejected")
	}
}

func TestBuildAllowsValidAdditionalMount(t *testing.T) {
	v := New(testRoots())

	specs, err := v.Build("group1", "telegram:1", false, []Additional{
		{HostPath: filepath.Join("/data", "extra"), ContainerPath: "/workspace/extra", Mode: "rw"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	last := specs[len(specs)-1]
	if last.ContainerPath != "/workspace/extra" || !last.ReadWrite {
		t.Fatalf("unexpected additional mount: %+v", last)
	}
}

func TestBuildOnlyExactRwStringUpgradesMode(t *testing.T) {
	v := New(testRoots())

	specs, err := v.Build("group1", "telegram:1", false, []Additional{
		{HostPath: filepath.Join("/data", "extra"), ContainerPath: "/workspace/extra", Mode: "RW"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	last := specs[len(specs)-1]
	if last.ReadWrite {
		t.Fatal("expected non-exact \"rw\" string to stay read-only")
	}
}

func TestBuildSkipsEmptyAdditionalMount(t *testing.T) {
	v := New(testRoots())

	specs, err := v.Build("group1", "telegram:1", false, []Additional{
		{HostPath: "", ContainerPath: "", Mode: ""},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("expected empty additional mount to be silently skipped, got %d specs", len(specs))
	}
}

func TestSpecArg(t *testing.T) {
	s := Spec{HostPath: "/a", ContainerPath: "/b", ReadWrite: true}
	if got, want := s.Arg(), "/a:/b:rw"; got != want {
		t.Fatalf("Arg() = %q, want %q", got, want)
	}
}

func TestValidFolder(t *testing.T) {
	valid := []string{"group1", "my-group_2", "a"}
	for _, f := range valid {
		if !ValidFolder(f) {
			t.Errorf("ValidFolder(%q) = false, want true", f)
		}
	}

	invalid := []string{"", ".", "..", "a/b", "a\\b", "../escape", "a\x00b"}
	for _, f := range invalid {
		if ValidFolder(f) {
			t.Errorf("ValidFolder(%q) = true, want false", f)
		}
	}
}
