package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/fingerprint"
)

func TestNormalizeScrubsRunSpecificNoise(t *testing.T) {
	in := "AssertionError: accuracy 0.590 at 2024-05-01T12:34:56Z for request " +
		"a1b2c3d4-e5f6-7890-abcd-ef1234567890 addr=0x7ffeea3c retries=3"

	out := fingerprint.Normalize(in)

	assert.NotContains(t, out, "0.590")
	assert.NotContains(t, out, "2024-05-01")
	assert.NotContains(t, out, "a1b2c3d4")
	assert.NotContains(t, out, "0x7ffeea3c")
	assert.Contains(t, out, "<UUID>")
	assert.Contains(t, out, "<TIMESTAMP>")
	assert.Contains(t, out, "<ADDR>")
	assert.Contains(t, out, "<NUM>")
}

func TestNormalizeCollapsesFloatsAndIntsToNum(t *testing.T) {
	assert.Equal(t,
		"AssertionError: accuracy too low: <NUM> < <NUM>",
		fingerprint.Normalize("AssertionError: accuracy too low: 0.590 < 0.620"))

	assert.Equal(t,
		"Object at <ADDR> failed at <TIMESTAMP> with code <NUM>",
		fingerprint.Normalize("Object at 0x7f8a3c failed at 2024-01-22T10:30:45 with code 42"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	in := "AssertionError: accuracy 0.590 at 2024-05-01T12:34:56Z retries=3"
	once := fingerprint.Normalize(in)
	twice := fingerprint.Normalize(once)
	assert.Equal(t, once, twice)
}

func TestExtractFingerprintFromSection(t *testing.T) {
	log := "____________________ tests/a.py::test_one ____________________\n" +
		"AssertionError: accuracy too low: 0.590 < 0.620\n" +
		"____________________ tests/b.py::test_two ____________________\n"

	fp, ok := fingerprint.ExtractFingerprint(log, "tests/a.py::test_one")
	require.True(t, ok)
	assert.Equal(t, "AssertionError: accuracy too low: <NUM> < <NUM>", fp)
}

func TestExtractFingerprintFallsBackToScanWindow(t *testing.T) {
	log := "FAILED tests/a.py::test_one - AssertionError: timed out after 30 retries\n"

	fp, ok := fingerprint.ExtractFingerprint(log, "tests/a.py::test_one")
	require.True(t, ok)
	assert.Contains(t, fp, "<NUM>")
}

func TestExtractFingerprintNotFound(t *testing.T) {
	_, ok := fingerprint.ExtractFingerprint("nothing here", "tests/missing.py::test_x")
	assert.False(t, ok)
}

func TestFailureKeyIsStableAndTestNameSensitive(t *testing.T) {
	k1 := fingerprint.FailureKey("GPU Tests", "tests/a.py::test_one", "AssertionError: boom\nstack...")
	k2 := fingerprint.FailureKey("gpu tests", "tests/a.py::test_one", "AssertionError: boom\nother stack")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 16)

	k3 := fingerprint.FailureKey("GPU Tests", "tests/a.py::test_two", "AssertionError: boom")
	assert.NotEqual(t, k1, k3)
}

func TestFailureKeyTruncatesErrorMessage(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	k1 := fingerprint.FailureKey("job", "test", string(long))
	k2 := fingerprint.FailureKey("job", "test", string(long[:100]))
	assert.Equal(t, k1, k2)
}
