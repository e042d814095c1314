package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
)

func TestNormalizeUKPhoneNationalToInternational(t *testing.T) {
	assert.Equal(t, "+447911123456", NormalizeUKPhone("07911 123456"))
	assert.Equal(t, "+447911123456", NormalizeUKPhone("07911-123456"))
}

func TestNormalizeUKPhoneLeavesInternationalAlone(t *testing.T) {
	assert.Equal(t, "+447911123456", NormalizeUKPhone("+447911123456"))
}

func TestResolveSingleMatch(t *testing.T) {
	r := NewResolver()
	r.Register("PT-1", "07911 123456")

	id, err := r.Resolve("+447911123456")
	assert.NoError(t, err)
	assert.Equal(t, "PT-1", id)
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("+447911000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAmbiguous(t *testing.T) {
	r := NewResolver()
	r.Register("PT-1", "same@example.com")
	r.Register("PT-2", "same@example.com")

	_, err := r.Resolve("same@example.com")
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.ElementsMatch(t, []string{"PT-1", "PT-2"}, r.Candidates("same@example.com"))
}

func TestUpdateForPatientIndexesPhoneEmailAndHelpers(t *testing.T) {
	r := NewResolver()
	d := diary.New("PT-1", "", time.Now().UTC())
	d.Intake.Phone = "07911123456"
	d.Intake.Email = "pt1@example.com"
	d.HelperRegistry.Add(diary.Helper{ID: "H1", Contact: "helper@example.com", Verified: true})

	r.UpdateForPatient(d)

	id, err := r.Resolve("pt1@example.com")
	assert.NoError(t, err)
	assert.Equal(t, "PT-1", id)

	id, err = r.Resolve("helper@example.com")
	assert.NoError(t, err)
	assert.Equal(t, "PT-1", id)
}
