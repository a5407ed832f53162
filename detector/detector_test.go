package detector

import "testing"

func limitsWith(maxX, maxTot uint32) Limits {
	return Limits{
		MaxComputeWorkgroupSizeX:          maxX,
		MaxComputeInvocationsPerWorkgroup: maxTot,
		MaxComputeWorkgroupsPerDimension:  65535,
		MaxStorageBufferBindingSize:       128 << 20,
		MaxBufferSize:                     256 << 20,
	}
}

func TestChooseX(t *testing.T) {
	cases := []struct {
		maxX, maxTot, want uint32
	}{
		{256, 256, 256},
		{1024, 256, 256},
		{128, 1024, 128},
		{100, 100, 64},
		{0, 0, 1},
	}
	for _, c := range cases {
		if got := chooseX(c.maxX, c.maxTot); got != c.want {
			t.Errorf("chooseX(%d,%d) = %d, want %d", c.maxX, c.maxTot, got, c.want)
		}
	}
}

func TestKernelGroupSizeCapped(t *testing.T) {
	if got := KernelGroupSize(limitsWith(256, 256)); got != MaxKernelGroup {
		t.Fatalf("got %d, want %d", got, MaxKernelGroup)
	}
	if got := KernelGroupSize(limitsWith(32, 32)); got != 32 {
		t.Fatalf("got %d, want 32", got)
	}
}

func TestBudgetEnv(t *testing.T) {
	t.Setenv(BudgetEnv, "")
	if got := Recommend(limitsWith(256, 256)).BudgetBytes; got != 128<<20 {
		t.Fatalf("default budget %d", got)
	}
	t.Setenv(BudgetEnv, "64")
	if got := Recommend(limitsWith(256, 256)).BudgetBytes; got != 64<<20 {
		t.Fatalf("override budget %d", got)
	}
	t.Setenv(BudgetEnv, "junk")
	if got := Recommend(limitsWith(256, 256)).BudgetBytes; got != 128<<20 {
		t.Fatalf("invalid override should fall back, got %d", got)
	}
	if env := pickEnv([]string{BudgetEnv}); env[BudgetEnv] != "junk" {
		t.Fatalf("env not reported: %v", env)
	}
}

func TestMaxInstances(t *testing.T) {
	t.Setenv(BudgetEnv, "")
	l := limitsWith(256, 256)
	r := Recommend(l)

	// [12,16,8]: 320 weights, 24 biases, 12 inputs, 8 outputs = 1456 bytes.
	if got, want := MaxInstances(l, r, 320, 24, 12, 8), (128<<20)/1456; got != want {
		t.Fatalf("budget bound: got %d, want %d", got, want)
	}

	l.MaxComputeWorkgroupsPerDimension = 10
	if got := MaxInstances(l, r, 320, 24, 12, 8); got != 640 {
		t.Fatalf("grid bound: got %d, want 640", got)
	}

	l = limitsWith(256, 256)
	l.MaxStorageBufferBindingSize = 4 * 320 * 100
	if got := MaxInstances(l, r, 320, 24, 12, 8); got != 100 {
		t.Fatalf("binding bound: got %d, want 100", got)
	}
}
