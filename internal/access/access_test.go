package access

import (
	"bytes"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftoolkit/internal/assembler"
	"github.com/local/pdftoolkit/internal/fixture"
	"github.com/local/pdftoolkit/internal/pdferr"
)

func newDoc(t *testing.T, pages int) *assembler.Document {
	t.Helper()
	src, err := assembler.LoadSource("in.pdf", fixture.NumberedPDF(pages))
	require.NoError(t, err)
	doc := assembler.Create()
	require.NoError(t, doc.AppendAll(src))
	return doc
}

func TestProtectRequiresPasswordToOpen(t *testing.T) {
	doc := newDoc(t, 3)
	require.NoError(t, Protect(doc, NewEncryptionSpec("s3cret")))

	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)

	_, err = api.ReadContext(bytes.NewReader(out), model.NewDefaultConfiguration())
	assert.Error(t, err, "must not open without a password")

	conf := model.NewDefaultConfiguration()
	conf.UserPW = "s3cret"
	n, err := api.PageCount(bytes.NewReader(out), conf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	conf = model.NewDefaultConfiguration()
	conf.UserPW = "wrong"
	conf.OwnerPW = "wrong"
	_, err = api.PageCount(bytes.NewReader(out), conf)
	assert.Error(t, err)
}

func TestProtectSealsDocument(t *testing.T) {
	doc := newDoc(t, 1)
	require.NoError(t, Protect(doc, NewEncryptionSpec("pw")))

	_, err := doc.AddBlankPage(100, 100)
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))
	assert.Error(t, Protect(doc, NewEncryptionSpec("pw")))
}

func TestProtectRejectsEmptyPassword(t *testing.T) {
	doc := newDoc(t, 1)
	err := Protect(doc, NewEncryptionSpec(""))
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))
	assert.False(t, doc.Sealed())
}

func TestVerifyRejectsUnprotectedOutput(t *testing.T) {
	plain := fixture.NumberedPDF(2)
	err := Verify(plain, NewEncryptionSpec("pw"), 2)
	assert.Equal(t, pdferr.EncryptionUnsupported, pdferr.KindOf(err))
}

func TestFixedPermissionFlags(t *testing.T) {
	assert.Equal(t, model.PermissionsPrint, FixedPermissions().flags())
	assert.Equal(t, model.PermissionsNone, Permissions{}.flags())

	all := Permissions{
		Print: PrintHighRes, Modify: true, Copy: true, Annotate: true,
		FillForms: true, ExtractAccessibility: true, Assemble: true,
	}
	assert.Equal(t, model.PermissionsAll, all.flags())
}

func TestNewEncryptionSpecUsesSamePassword(t *testing.T) {
	spec := NewEncryptionSpec("pw")
	assert.Equal(t, spec.UserPassword, spec.OwnerPassword)
	assert.Equal(t, FixedPermissions(), spec.Permissions)
}
