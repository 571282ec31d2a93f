package conversation

import (
	"testing"

	"anoa.com/lostfound/internal/entity"
	"github.com/stretchr/testify/require"
)

func TestDisplayNamerIsDeterministicForSeed(t *testing.T) {
	a, b := NewDisplayNamer(42), NewDisplayNamer(42)
	for i := 0; i < 5; i++ {
		require.Equal(t, a.Name(entity.ParticipantRoleOwner), b.Name(entity.ParticipantRoleOwner))
	}
}

func TestDisplayNamerRoleSuffix(t *testing.T) {
	n := NewDisplayNamer(1)
	require.Regexp(t, `^[A-Z][a-z]+[A-Z][a-z]+O$`, n.Name(entity.ParticipantRoleOwner))
	require.Regexp(t, `^[A-Z][a-z]+[A-Z][a-z]+F$`, n.Name(entity.ParticipantRoleFinder))
	require.Regexp(t, `^[A-Z][a-z]+[A-Z][a-z]+C$`, n.Name(entity.ParticipantRoleClaimer))
}
