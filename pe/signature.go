package pe

import (
	"reflect"

	"go.mozilla.org/pkcs7"
)

// SignatureInfo is the populated-but-unenforced Code Integrity record
// §3.1/§4.3 describe: PeLoader parses an Authenticode/PKCS7 signature when
// present but never validates it against a trust anchor, matching §1's
// non-goal of not implementing Secure Boot chain-of-trust verification.
type SignatureInfo struct {
	Present    bool
	SignerName string
	DigestAlgOID string
}

// ParseSignature locates IMAGE_DIRECTORY_ENTRY_SECURITY and parses the
// WIN_CERTIFICATE blob's PKCS7 payload. A parse failure is not propagated
// as an error: the caller treats a zero SignatureInfo as "absent" and
// proceeds, since Code Integrity is populated, not enforced.
func ParseSignature(h Headers, blob []byte) (SignatureInfo, error) {
	dir := h.DataDirectories[ImageDirectoryEntrySecurity]
	if dir.Size == 0 {
		return SignatureInfo{}, nil
	}
	// Unlike every other directory, Security's VirtualAddress is a file
	// offset, not an RVA — WIN_CERTIFICATE entries are not mapped into the
	// image.
	if uint64(dir.VirtualAddress)+uint64(dir.Size) > uint64(len(blob)) {
		return SignatureInfo{}, nil
	}
	cert := blob[dir.VirtualAddress : dir.VirtualAddress+dir.Size]
	if len(cert) < 8 {
		return SignatureInfo{}, nil
	}
	// WIN_CERTIFICATE header: dwLength(4) wRevision(2) wCertificateType(2)
	payload := cert[8:]

	p7, err := pkcs7.Parse(payload)
	if err != nil {
		return SignatureInfo{}, nil
	}

	info := SignatureInfo{Present: true}
	if len(p7.Signers) > 0 {
		info.DigestAlgOID = p7.Signers[0].DigestAlgorithm.Algorithm.String()

		// Match the signer's certificate the same way saferwall/pe does:
		// by comparing the signer's serial number against each parsed
		// certificate, since PKCS7 doesn't index them directly.
		serial := p7.Signers[0].IssuerAndSerialNumber.SerialNumber
		for _, cert := range p7.Certificates {
			if reflect.DeepEqual(cert.SerialNumber, serial) {
				info.SignerName = cert.Subject.CommonName
				break
			}
		}
	}
	return info, nil
}
