package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verigate/pkg/domain-errors"
)

func TestParsePersonRole(t *testing.T) {
	role, err := ParsePersonRole("witness")
	require.NoError(t, err)
	assert.Equal(t, RoleWitness, role)

	// Case and whitespace are normalized.
	role, err = ParsePersonRole("  Accused ")
	require.NoError(t, err)
	assert.Equal(t, RoleAccused, role)

	_, err = ParsePersonRole("bystander")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))

	_, err = ParsePersonRole("")
	assert.Error(t, err)
}

func TestParseDocumentKind(t *testing.T) {
	kind, err := ParseDocumentKind("passport")
	require.NoError(t, err)
	assert.Equal(t, DocumentPassport, kind)

	kind, err = ParseDocumentKind("NATIONAL_ID")
	require.NoError(t, err)
	assert.Equal(t, DocumentNationalID, kind)

	_, err = ParseDocumentKind("visa")
	assert.Error(t, err)
}

func TestParseNationalID(t *testing.T) {
	nid, err := ParseNationalID("123456789")
	require.NoError(t, err)
	assert.Equal(t, "123456789", nid.String())

	nid, err = ParseNationalID(" 123456789 ")
	require.NoError(t, err)
	assert.Equal(t, "123456789", nid.String())

	for _, bad := range []string{"", "12345678", "1234567890", "12345678X"} {
		_, err := ParseNationalID(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseCaseID(t *testing.T) {
	caseID, err := ParseCaseID("  CASE-2031-0042 ")
	require.NoError(t, err)
	assert.Equal(t, CaseID("CASE-2031-0042"), caseID)

	_, err = ParseCaseID("   ")
	assert.Error(t, err)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	_, err = ParseCaseID(string(long))
	assert.Error(t, err)
}
