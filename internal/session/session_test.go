package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

func TestSession_Mint(t *testing.T) {
	s := New("s1", detect.LevelStandard)

	t.Run("suffixes increase per type", func(t *testing.T) {
		assert.Equal(t, "PERSON_001", s.Mint(detect.TypePerson, "John Smith"))
		assert.Equal(t, "PERSON_002", s.Mint(detect.TypePerson, "Jane Doe"))
		assert.Equal(t, "EMAIL_001", s.Mint(detect.TypeEmail, "john@example.com"))
	})

	t.Run("mapping and inverse stay consistent", func(t *testing.T) {
		token, ok := s.TokenFor("John Smith")
		require.True(t, ok)
		assert.Equal(t, "PERSON_001", token)

		value, ok := s.Original("PERSON_001")
		require.True(t, ok)
		assert.Equal(t, "John Smith", value)
	})

	t.Run("reuse is exact-string", func(t *testing.T) {
		_, ok := s.TokenFor("john smith")
		assert.False(t, ok)
		_, ok = s.TokenFor("John  Smith")
		assert.False(t, ok)
	})

	t.Run("suffix grows past three digits", func(t *testing.T) {
		s := New("s2", detect.LevelStandard)
		var last string
		for i := 0; i < 1000; i++ {
			last = s.Mint(detect.TypePhone, fmt.Sprintf("555-000-%04d", i))
		}
		assert.Equal(t, "PHONE_1000", last)
	})
}

func TestSession_AddRelationship(t *testing.T) {
	s := New("s1", detect.LevelStandard)
	s.Mint(detect.TypePerson, "John Smith")
	s.Mint(detect.TypeEmail, "john@example.com")

	t.Run("adds edge between existing tokens", func(t *testing.T) {
		added := s.AddRelationship("PERSON_001", detect.TypePerson, "EMAIL_001", "has_email")
		assert.True(t, added)
		assert.Equal(t, "has_email", s.Relationships["PERSON_001"].Relationships["EMAIL_001"])
	})

	t.Run("never overwrites an existing label", func(t *testing.T) {
		added := s.AddRelationship("PERSON_001", detect.TypePerson, "EMAIL_001", "related")
		assert.False(t, added)
		assert.Equal(t, "has_email", s.Relationships["PERSON_001"].Relationships["EMAIL_001"])
	})

	t.Run("rejects unknown tokens", func(t *testing.T) {
		assert.False(t, s.AddRelationship("PERSON_999", detect.TypePerson, "EMAIL_001", "x"))
		assert.False(t, s.AddRelationship("PERSON_001", detect.TypePerson, "EMAIL_999", "x"))
	})
}

func TestSession_EncodeDecode(t *testing.T) {
	s := New("s1", detect.LevelStrict)
	s.Mint(detect.TypePerson, "John Smith")
	s.Mint(detect.TypePerson, "Jane Doe")
	s.Mint(detect.TypeProject, "Project Alpha")
	s.AddRelationship("PROJECT_001", detect.TypeProject, "PERSON_001", "has_member")
	s.Context = []string{"meeting", "quarterly"}
	s.Metadata = map[string]string{"origin": "test"}

	data, err := s.encode()
	require.NoError(t, err)

	got, err := decode(data)
	require.NoError(t, err)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, detect.LevelStrict, got.PrivacyLevel)
	assert.Equal(t, s.TokenMappings, got.TokenMappings)
	assert.Equal(t, s.Context, got.Context)
	assert.Equal(t, "has_member", got.Relationships["PROJECT_001"].Relationships["PERSON_001"])

	t.Run("counters continue after reload", func(t *testing.T) {
		assert.Equal(t, "PERSON_003", got.Mint(detect.TypePerson, "Jim Beam"))
		assert.Equal(t, "PROJECT_002", got.Mint(detect.TypeProject, "Project Beta"))
	})

	t.Run("inverse map is rebuilt", func(t *testing.T) {
		token, ok := got.TokenFor("John Smith")
		require.True(t, ok)
		assert.Equal(t, "PERSON_001", token)
	})
}

func TestSession_Clone(t *testing.T) {
	s := New("s1", detect.LevelStandard)
	s.Mint(detect.TypePerson, "John Smith")
	s.Mint(detect.TypeEmail, "john@example.com")
	s.AddRelationship("PERSON_001", detect.TypePerson, "EMAIL_001", "has_email")

	c := s.Clone()
	c.Mint(detect.TypePerson, "Jane Doe")
	c.Relationships["PERSON_001"].Relationships["EMAIL_001"] = "tampered"

	assert.Len(t, s.TokenMappings, 2)
	assert.Equal(t, "has_email", s.Relationships["PERSON_001"].Relationships["EMAIL_001"])
}

func TestSplitToken(t *testing.T) {
	tests := []struct {
		token string
		typ   detect.Type
		n     int
		ok    bool
	}{
		{"PERSON_001", detect.TypePerson, 1, true},
		{"EMAIL_042", detect.TypeEmail, 42, true},
		{"API_KEY_007", "API_KEY", 7, true},
		{"PHONE_1000", detect.TypePhone, 1000, true},
		{"no-underscore", "", 0, false},
		{"TRAILING_", "", 0, false},
		{"_001", "", 0, false},
		{"PERSON_xyz", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			typ, n, ok := splitToken(tt.token)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.typ, typ)
				assert.Equal(t, tt.n, n)
			}
		})
	}
}
