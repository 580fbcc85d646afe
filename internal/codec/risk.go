package codec

import "lobsim/internal/schema"

// AppendRiskDecision serializes a risk decision, original intent first.
func AppendRiskDecision(dst []byte, d schema.RiskDecision) []byte {
	dst = appendU16(dst, uint16(d.Action))
	dst = appendU16(dst, uint16(d.Reason))
	dst = appendString(dst, d.Policy)
	dst = AppendIntent(dst, d.Original)
	return AppendIntent(dst, d.Intent)
}

// DecodeRiskDecision parses a payload written by AppendRiskDecision.
func DecodeRiskDecision(src []byte) (schema.RiskDecision, bool) {
	r := reader{src: src}
	d := schema.RiskDecision{
		Action: schema.RiskAction(r.u16()),
		Reason: schema.RiskReason(r.u16()),
		Policy: r.str(),
	}
	d.Original = readIntent(&r)
	d.Intent = readIntent(&r)
	if !r.ok() {
		return schema.RiskDecision{}, false
	}
	return d, true
}
