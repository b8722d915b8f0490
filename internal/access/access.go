// Package access applies password protection to assembled documents.
package access

import (
	"bytes"
	"errors"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftoolkit/internal/assembler"
	"github.com/local/pdftoolkit/internal/pdferr"
)

// KeyLength is the AES key size in bits.
const KeyLength = 256

// PrintQuality is the printing level a protected document allows.
type PrintQuality int

const (
	PrintNone PrintQuality = iota
	PrintLowRes
	PrintHighRes
)

// Permissions is the allow/deny bundle recorded in the encryption dictionary.
type Permissions struct {
	Print                PrintQuality
	Modify               bool
	Copy                 bool
	Annotate             bool
	FillForms            bool
	ExtractAccessibility bool
	Assemble             bool
}

// FixedPermissions allows full resolution printing and denies everything else.
func FixedPermissions() Permissions {
	return Permissions{Print: PrintHighRes}
}

// Permission bits of the P entry, numbered from 1 as in ISO 32000 table 22.
const (
	bitPrint         = 1 << 2
	bitModify        = 1 << 3
	bitCopy          = 1 << 4
	bitAnnotate      = 1 << 5
	bitFillForms     = 1 << 8
	bitAccessibility = 1 << 9
	bitAssemble      = 1 << 10
	bitPrintHighRes  = 1 << 11
)

func (p Permissions) flags() model.PermissionFlags {
	f := model.PermissionsNone
	switch p.Print {
	case PrintHighRes:
		f |= bitPrint | bitPrintHighRes
	case PrintLowRes:
		f |= bitPrint
	}
	set := func(ok bool, bit model.PermissionFlags) {
		if ok {
			f |= bit
		}
	}
	set(p.Modify, bitModify)
	set(p.Copy, bitCopy)
	set(p.Annotate, bitAnnotate)
	set(p.FillForms, bitFillForms)
	set(p.ExtractAccessibility, bitAccessibility)
	set(p.Assemble, bitAssemble)
	return f
}

// EncryptionSpec is consumed once by Protect and never persisted.
type EncryptionSpec struct {
	UserPassword  string
	OwnerPassword string
	Permissions   Permissions
}

// NewEncryptionSpec uses password for both the user and the owner password
// and applies FixedPermissions.
func NewEncryptionSpec(password string) EncryptionSpec {
	return EncryptionSpec{
		UserPassword:  password,
		OwnerPassword: password,
		Permissions:   FixedPermissions(),
	}
}

func (s EncryptionSpec) validate() error {
	if s.UserPassword == "" {
		return pdferr.New(pdferr.InvalidRequest, "password is required")
	}
	if s.OwnerPassword == "" {
		return pdferr.New(pdferr.InvalidRequest, "owner password is required")
	}
	return nil
}

// Protect seals doc so that Serialize emits an AES-256 encrypted document.
// No pages can be added afterwards.
func Protect(doc *assembler.Document, spec EncryptionSpec) error {
	if doc == nil {
		return pdferr.New(pdferr.InvalidRequest, "nil document")
	}
	if err := spec.validate(); err != nil {
		return err
	}
	return doc.Seal(&encrypter{spec: spec})
}

type encrypter struct {
	spec EncryptionSpec
}

func (e *encrypter) Finish(pdf []byte, pages int) ([]byte, error) {
	conf := model.NewAESConfiguration(e.spec.UserPassword, e.spec.OwnerPassword, KeyLength)
	conf.ValidationMode = model.ValidationRelaxed
	conf.Permissions = e.spec.Permissions.flags()

	var buf bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(pdf), &buf, conf); err != nil {
		return nil, pdferr.Wrap(pdferr.EncryptionUnsupported, err, "encrypt document")
	}
	out := buf.Bytes()
	if err := Verify(out, e.spec, pages); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify checks that pdf refuses to open without a password and opens with
// spec's user password to the expected page count.
func Verify(pdf []byte, spec EncryptionSpec, pages int) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if _, err := api.ReadContext(bytes.NewReader(pdf), conf); err == nil {
		return pdferr.New(pdferr.EncryptionUnsupported, "output opens without a password")
	} else if !errors.Is(err, pdfcpu.ErrWrongPassword) {
		log.Debug().Err(err).Msg("protected output rejected without password")
	}

	conf = model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = spec.UserPassword
	conf.OwnerPW = spec.OwnerPassword
	n, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return pdferr.Wrap(pdferr.EncryptionUnsupported, err, "output does not open with its password")
	}
	if n != pages {
		return pdferr.New(pdferr.EncryptionUnsupported, "protected output has %d pages, want %d", n, pages)
	}
	return nil
}
