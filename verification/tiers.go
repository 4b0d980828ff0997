package verification

// Tier document requirements are nested: each tier demands a strict superset
// of the one below it.
var tierRequirements = map[Tier][]DocumentType{
	Tier1: {DocNationalID},
	Tier2: {DocNationalID, DocBusinessPermit},
	Tier3: {DocNationalID, DocBusinessPermit, DocTaxCertificate, DocBankStatement},
}

// Strike thresholds; evaluated on every increment, never relaxed.
const (
	suspendThreshold = 3
	banThreshold     = 5
)

// RequiredDocuments returns the document-type set a tier demands.
func RequiredDocuments(tier Tier) ([]DocumentType, bool) {
	req, ok := tierRequirements[tier]
	return req, ok
}

func validTier(tier Tier) bool {
	_, ok := tierRequirements[tier]
	return ok
}

func validDocumentType(dt DocumentType) bool {
	switch dt {
	case DocNationalID, DocBusinessPermit, DocTaxCertificate, DocBankStatement:
		return true
	default:
		return false
	}
}

// evaluate compares an uploaded document-type set against a tier's required
// set. Missing is required minus uploaded, in requirement order.
func evaluate(uploaded []DocumentType, tier Tier) TierEvaluation {
	have := make(map[DocumentType]struct{}, len(uploaded))
	for _, dt := range uploaded {
		have[dt] = struct{}{}
	}

	eval := TierEvaluation{Satisfied: true, Missing: []DocumentType{}}
	for _, dt := range tierRequirements[tier] {
		if _, ok := have[dt]; !ok {
			eval.Satisfied = false
			eval.Missing = append(eval.Missing, dt)
		}
	}
	return eval
}

// standingFor maps an absolute strike count to the standing it mandates.
// Counts below the suspension threshold impose nothing, which lets a manual
// reinstatement survive until the next strike.
func standingFor(count int, current Standing) Standing {
	switch {
	case count >= banThreshold:
		return StandingBanned
	case count >= suspendThreshold:
		return StandingSuspended
	default:
		return current
	}
}
