package passport

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha1" //nolint:gosec // ICAO 9303 Appendix D mandates SHA-1 for the PACE-MRZ password.
	"encoding/asn1"
	"errors"

	"github.com/corverto/emrtd/pkg/aa"
	"github.com/corverto/emrtd/pkg/bac"
	"github.com/corverto/emrtd/pkg/ca"
	"github.com/corverto/emrtd/pkg/lds"
	"github.com/corverto/emrtd/pkg/pace"
	"github.com/corverto/emrtd/pkg/sm"
	"github.com/corverto/emrtd/pkg/tagreader"
)

// eMRTDAID is the LDS1 application identifier every ICAO 9303 travel
// document using BAC or PACE selects before any file access.
var eMRTDAID = []byte{0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

// session carries the mutable state a single readDocument invocation
// threads through the state machine in §4.6: the reader it borrows for
// every handshake and file read, the options governing it, and the
// result it builds incrementally.
type session struct {
	ctx       context.Context
	transport Transport
	reader    *tagreader.Reader
	opts      Options
	mrzInfo   string
	result    *DocumentResult

	invalidated bool
}

func newSession(ctx context.Context, transport Transport, reader *tagreader.Reader, mrzInfo string, opts Options) *session {
	return &session{
		ctx:       ctx,
		transport: transport,
		reader:    reader,
		opts:      opts,
		mrzInfo:   mrzInfo,
		result:    newDocumentResult(),
	}
}

// emit reports a display step to the caller. If the callback overrides
// the message text for a DisplayError step, the override is written
// back onto the DocumentError being reported, so UserMessage() (and
// whatever the caller ultimately does with the returned error) reflects
// the caller's text rather than the built-in default.
func (s *session) emit(msg DisplayMessage) {
	if s.opts.OnDisplayMessage == nil {
		return
	}
	override := s.opts.OnDisplayMessage(msg)
	text := msg.resolveText(override)
	if msg.Kind == DisplayError && msg.Err != nil && override != nil {
		msg.Err.Message = text
	}
}

// invalidate tears down the chip session exactly once; later calls (e.g.
// once from the cancellation path and once from a deferred cleanup) are
// no-ops, matching the source's suppression of a second "user cancelled"
// signal some transports emit on their own disconnect.
func (s *session) invalidate(message string) {
	if s.invalidated {
		return
	}
	s.invalidated = true
	s.transport.Invalidate(message)
}

// run drives INIT → SELECT_APP → (PACE|BAC) → READ_COM → READ_SOD → (CA)
// → READ_DGS → (AA) → PASSIVE_AUTH → DONE. It fails the call when
// selecting the application, establishing access (§4.6: BAC failure is
// terminal), reading or parsing EF.COM or EF.SOD, or reading or parsing an
// explicitly requested data group fails; Chip, Active and Passive
// Authentication outcomes are recorded in the result's status fields
// instead. On return the keys of the installed SM session are zeroed.
func (s *session) run() (*DocumentResult, error) {
	defer func() {
		if s.ctx.Err() != nil {
			s.invalidate("cancelled")
		}
		if smSession := s.reader.Session(); smSession != nil {
			for i := range smSession.KSenc {
				smSession.KSenc[i] = 0
			}
			for i := range smSession.KSmac {
				smSession.KSmac[i] = 0
			}
		}
	}()

	if err := s.reader.SelectApplication(s.ctx, eMRTDAID); err != nil {
		return nil, s.fail(classifyConnectionError(err))
	}
	if sel := s.reader.ApplicationSelectResult(); sel != nil {
		if fci, fciErr := sel.FCI(); fciErr == nil {
			s.result.ApplicationFCI = fci
		}
	}

	cardAccess := s.readCardAccessClear()
	s.result.CardAccess = cardAccess

	if err := s.establishAccess(cardAccess); err != nil {
		return nil, s.fail(err)
	}

	comRaw, err := s.reader.ReadFile(s.ctx, lds.FileIDCOM, nil)
	if err != nil {
		return nil, s.fail(classifyConnectionError(err))
	}
	com, err := lds.ParseCOM(comRaw)
	if err != nil {
		return nil, s.fail(newDocumentError(KindUnexpectedError, err))
	}

	sodRaw, err := s.reader.ReadFile(s.ctx, lds.FileIDSOD, nil)
	if err != nil {
		return nil, s.fail(classifyConnectionError(err))
	}
	sod, err := lds.ParseSOD(sodRaw)
	if err != nil {
		return nil, s.fail(newDocumentError(KindUnexpectedError, err))
	}

	ids, explicit := s.effectiveDataGroupIds(com)

	if !s.opts.SkipCA {
		if idx := indexOfDG(ids, lds.DG14); idx >= 0 {
			s.readAndRunChipAuth(ids[idx])
			ids = append(ids[:idx], ids[idx+1:]...)
		}
	}

	if err := s.readDataGroups(ids, explicit); err != nil {
		return nil, s.fail(err)
	}

	if dg15, ok := s.result.DataGroups[lds.DG15]; ok {
		s.runActiveAuth(dg15)
	}

	s.runPassiveAuth(sod, sodRaw)

	s.emit(DisplayMessage{Kind: DisplaySuccessfulRead})
	return s.result, nil
}

func (s *session) fail(err *DocumentError) *DocumentError {
	s.emit(DisplayMessage{Kind: DisplayError, Err: err})
	s.invalidate(err.Error())
	return err
}

// readCardAccessClear reads EF.CardAccess before any secure channel
// exists; its absence (common on BAC-only documents) is not an error.
func (s *session) readCardAccessClear() *lds.CardAccess {
	raw, err := s.reader.ReadFile(s.ctx, lds.FileIDCardAccess, nil)
	if err != nil {
		return nil
	}
	ca, err := lds.ParseCardAccess(raw)
	if err != nil {
		return nil
	}
	return ca
}

// establishAccess runs PACE unless skipPACE or no PACEInfo is advertised;
// any PACE failure (negotiation, mismatched token) downgrades to BAC.
// BAC failure is terminal per §4.6.
func (s *session) establishAccess(cardAccess *lds.CardAccess) *DocumentError {
	if !s.opts.SkipPACE && cardAccess != nil {
		for _, info := range cardAccess.PACE {
			smSession, err := s.runPACE(info)
			if err == nil {
				s.reader.InstallSession(smSession)
				s.result.PACEStatus = StatusSuccess
				s.result.BACStatus = StatusNotDone
				return nil
			}
		}
		s.result.PACEStatus = StatusFailed
	}

	smSession, err := s.runBAC()
	if err != nil {
		s.result.BACStatus = StatusFailed
		return err
	}
	s.reader.InstallSession(smSession)
	s.result.BACStatus = StatusSuccess
	return nil
}

// runBAC performs BAC and classifies failure by which step it reached:
// a mismatch caught in verify_response means the MRZ-derived keys
// themselves were wrong; anything earlier is a transport problem.
func (s *session) runBAC() (*sm.Session, *DocumentError) {
	res, err := bac.Perform(s.ctx, s.reader, s.mrzInfo)
	if err != nil {
		var bacErr *bac.Error
		if errors.As(err, &bacErr) && bacErr.Step == "verify_response" {
			return nil, newDocumentError(KindInvalidMRZKey, err)
		}
		return nil, newDocumentError(KindConnectionError, err)
	}
	return res.Session, nil
}

// runPACE derives the MRZ password (SHA-1 of the MRZ information string,
// ICAO 9303 Appendix D.1) and runs Generic Mapping over the EC domain
// info.ParameterID names, falling back to NIST P-256 when the chip omits
// a parameter id (legal only when it supports exactly one domain).
func (s *session) runPACE(info lds.PACEInfo) (*sm.Session, error) {
	params := pace.ParamsNISTP256
	if info.HasParamID {
		params = pace.StandardizedDomainParams(info.ParameterID)
	}

	h := sha1.New() //nolint:gosec
	h.Write([]byte(s.mrzInfo))
	password := h.Sum(nil)

	res, err := pace.Perform(s.ctx, s.reader, info.Protocol, params, password)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

// effectiveDataGroupIds resolves the list of data groups to read: the
// caller's explicit list if non-empty (used as given), else every DG
// EF.COM advertises, with DG3/DG4 filtered from that EF.COM-derived list
// unless skipSecureElements is false. explicit
// reports, per id, whether the caller named it directly (§4.6: an
// abandoned explicitly-requested DG aborts the session; an
// auto-discovered one is silently dropped).
func (s *session) effectiveDataGroupIds(com *lds.COM) ([]lds.DataGroupId, map[lds.DataGroupId]bool) {
	var ids []lds.DataGroupId
	explicit := make(map[lds.DataGroupId]bool)

	if len(s.opts.DataGroups) > 0 {
		ids = append(ids, s.opts.DataGroups...)
		for _, id := range s.opts.DataGroups {
			explicit[id] = true
		}
	} else {
		ids = com.DataGroupIds()
	}

	if !s.opts.SkipSecureElements || len(s.opts.DataGroups) > 0 {
		return ids, explicit
	}
	filtered := ids[:0:0]
	for _, id := range ids {
		if id == lds.DG3 || id == lds.DG4 {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered, explicit
}

func indexOfDG(ids []lds.DataGroupId, target lds.DataGroupId) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}

// readAndRunChipAuth reads DG14, attempts Chip Authentication against its
// advertised static key, and on failure re-establishes BAC so the session
// can keep reading under a session Chip Authentication never touched
// (§4.4: any CA failure means the prior SM session must be assumed
// compromised).
func (s *session) readAndRunChipAuth(id lds.DataGroupId) {
	raw, err := s.reader.ReadFile(s.ctx, id.FileID(), s.progressFor(id))
	if err != nil {
		s.result.ChipAuthenticationStatus = StatusFailed
		return
	}
	dg, err := lds.NewDataGroup(id, raw)
	if err != nil {
		s.result.ChipAuthenticationStatus = StatusFailed
		return
	}
	s.result.DataGroups[id] = dg

	dg14, err := lds.ParseDG14(raw)
	if err != nil || len(dg14.Infos.ChipAuthenticationPublic) == 0 {
		s.result.ChipAuthenticationStatus = StatusNotDone
		return
	}

	pubInfo := dg14.Infos.ChipAuthenticationPublic[0]
	protocolOID, cipherName := matchChipAuthenticationInfo(dg14.Infos.ChipAuthentication, pubInfo.KeyID)

	pub, err := pubInfo.PublicKey()
	if err != nil {
		s.result.ChipAuthenticationStatus = StatusFailed
		return
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		s.result.ChipAuthenticationStatus = StatusNotDone
		return
	}
	chipKey, err := ecdsaPub.ECDH()
	if err != nil {
		s.result.ChipAuthenticationStatus = StatusFailed
		return
	}

	info := ca.PublicKeyInfo{
		OID:      protocolOID,
		Curve:    chipKey.Curve(),
		ChipKey:  chipKey,
		KeyID:    pubInfo.KeyID,
		HasKeyID: pubInfo.KeyID != 0,
	}

	res, err := ca.Perform(s.ctx, s.reader, info, cipherName)
	if err != nil {
		s.result.ChipAuthenticationStatus = StatusFailed
		if bacErr := s.runBACQuiet(); bacErr != nil {
			s.invalidate(bacErr.Error())
		}
		return
	}

	s.reader.InstallSession(res.Session)
	s.result.ChipAuthenticationStatus = StatusSuccess
}

// runBACQuiet re-establishes BAC after a Chip Authentication failure; it
// deliberately does not touch BACStatus, which already reflects the
// original (successful) access-establishment run.
func (s *session) runBACQuiet() error {
	// The session currently installed belongs to the handshake that just
	// failed (Chip Authentication, or secure messaging itself) and must
	// not wrap GET CHALLENGE/EXTERNAL AUTHENTICATE: BAC's handshake APDUs
	// always go out in the clear.
	s.reader.InstallSession(nil)
	smSession, err := s.runBAC()
	if err != nil {
		return err
	}
	s.reader.InstallSession(smSession)
	return nil
}

// matchChipAuthenticationInfo finds the ChipAuthenticationInfo entry
// advertising the same key id as the public key (or the first entry when
// none matches), returning its protocol OID and cipher name; with no
// entries it returns a nil OID and "3DES".
func matchChipAuthenticationInfo(infos []lds.ChipAuthenticationInfo, keyID int) (asn1.ObjectIdentifier, string) {
	for _, info := range infos {
		if info.KeyID == keyID {
			return info.Protocol, cipherNameForProtocol(info.Protocol)
		}
	}
	if len(infos) > 0 {
		return infos[0].Protocol, cipherNameForProtocol(infos[0].Protocol)
	}
	return nil, "3DES"
}

// cipherNameForProtocol reads the trailing arc of an id-CA-DH/id-CA-ECDH
// OID, the same cipher-suffix convention pace/oid.go uses for id-PACE-*.
func cipherNameForProtocol(protocol asn1.ObjectIdentifier) string {
	if len(protocol) == 0 {
		return "3DES"
	}
	switch protocol[len(protocol)-1] {
	case 2:
		return "AES-128"
	case 3:
		return "AES-192"
	case 4:
		return "AES-256"
	default:
		return "3DES"
	}
}

func classifyConnectionError(err error) *DocumentError {
	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return docErr
	}
	var statusErr *tagreader.StatusError
	if errors.As(err, &statusErr) {
		return newResponseError(statusErr.Op, statusErr.SW.SW1(), statusErr.SW.SW2())
	}
	return newDocumentError(KindConnectionError, err)
}

// readDataGroups reads every remaining id, applying §4.6's per-DG retry
// policy (at most one retry, classified by status word) and dropping a
// DG after two failed attempts. Dropping an auto-discovered DG is
// silent; dropping one the caller explicitly asked for aborts the read.
func (s *session) readDataGroups(ids []lds.DataGroupId, explicit map[lds.DataGroupId]bool) *DocumentError {
	chunk := tagreader.MaxReadChunk
	if s.opts.DataAmountOverride > 0 {
		chunk = s.opts.DataAmountOverride
	}

	for _, id := range ids {
		raw, err := s.reader.ReadFileChunked(s.ctx, id.FileID(), chunk, s.progressFor(id))
		if err != nil {
			raw, err = s.retryDataGroupRead(id, chunk, err)
		}
		if err != nil {
			if explicit[id] {
				return classifyConnectionError(err)
			}
			continue
		}

		dg, err := lds.NewDataGroup(id, raw)
		if err != nil {
			if explicit[id] {
				return newDocumentError(KindUnexpectedError, err)
			}
			continue
		}
		s.result.DataGroups[id] = dg
	}
	return nil
}

// retryDataGroupRead classifies the first failure and performs at most
// the one retry §4.6 allows. An access-denied status word re-runs BAC and
// returns the first error without retrying.
func (s *session) retryDataGroupRead(id lds.DataGroupId, chunk int, firstErr error) ([]byte, error) {
	// A local MAC failure on Unwrap is more severe than a chip-returned
	// SM status word: the response's authenticity could not be verified
	// at all, not just rejected. Treat it the same as IsSMError() below.
	var smErr *sm.Error
	if errors.As(firstErr, &smErr) {
		if err := s.runBACQuiet(); err != nil {
			return nil, err
		}
		return s.reader.ReadFileChunked(s.ctx, id.FileID(), chunk, s.progressFor(id))
	}

	var statusErr *tagreader.StatusError
	if !errors.As(firstErr, &statusErr) {
		return s.reader.ReadFileChunked(s.ctx, id.FileID(), chunk, s.progressFor(id))
	}

	switch {
	case statusErr.SW.IsSMError():
		if err := s.runBACQuiet(); err != nil {
			return nil, err
		}
		return s.reader.ReadFileChunked(s.ctx, id.FileID(), chunk, s.progressFor(id))
	case statusErr.SW.IsAccessDenied():
		_ = s.runBACQuiet()
		return nil, firstErr
	case statusErr.SW.IsWrongLength():
		smaller := chunk / 2
		if smaller < 1 {
			smaller = 1
		}
		return s.reader.ReadFileChunked(s.ctx, id.FileID(), smaller, s.progressFor(id))
	default:
		return s.reader.ReadFileChunked(s.ctx, id.FileID(), chunk, s.progressFor(id))
	}
}

// progressFor bridges tagreader's raw byte-count progress to the
// ReadingDataGroup display message.
func (s *session) progressFor(id lds.DataGroupId) tagreader.ProgressFunc {
	return func(read, total int) {
		pct := 0
		if total > 0 {
			pct = read * 100 / total
			if pct > 100 {
				pct = 100
			}
		}
		s.emit(DisplayMessage{Kind: DisplayReadingDataGroup, DataGroup: id, Percent: pct})
	}
}

// runActiveAuth verifies the chip holds DG15's private key, leaving
// ActiveAuthenticationStatus at notDone if DG15 or its public key can't
// be parsed (not a verification failure, just unavailable). A parsed key
// that is neither RSA nor ECDSA makes aa.Perform fail and is recorded as
// failed.
func (s *session) runActiveAuth(dg15 *lds.DataGroup) {
	parsed, err := lds.ParseDG15(dg15.Raw())
	if err != nil {
		s.result.ActiveAuthenticationStatus = StatusNotDone
		return
	}
	pub, err := parsed.PublicKey()
	if err != nil {
		s.result.ActiveAuthenticationStatus = StatusNotDone
		return
	}

	s.emit(DisplayMessage{Kind: DisplayAuthenticating})
	if err := aa.Perform(s.ctx, s.reader, pub); err != nil {
		s.result.ActiveAuthenticationStatus = StatusFailed
		return
	}
	s.result.ActiveAuthenticationStatus = StatusSuccess
}

// runPassiveAuth never fails the overall read; its outcome is recorded
// in the result for the caller to act on (§4.6).
func (s *session) runPassiveAuth(sod *lds.SOD, rawSOD []byte) {
	status, signer, errs := verifyPassiveAuth(sod, rawSOD, s.result.DataGroups, s.opts.MasterList, s.opts.PassiveAuthMode)
	s.result.PassiveAuthenticationStatus = status
	s.result.DocumentSigningCertificate = signer
	s.result.VerificationErrors = errs
}
