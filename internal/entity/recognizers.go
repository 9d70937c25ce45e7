package entity

import (
	"slices"
	"sort"
	"strings"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
)

// Recognizer turns records of one payload shape into entities and
// relationships. Recognizers ignore records that do not have their shape.
type Recognizer struct {
	Name string
	Recognize func(g *Graph, sourceID string, rec model.Record)
}

// DefaultRecognizers returns the built-in recognizers. Entity-defining shapes
// come first so linking shapes can find what they link to.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{Name: "company", Recognize: recognizeCompany},
		{Name: "contract", Recognize: recognizeContract},
		{Name: "bidding", Recognize: recognizeBidding},
		{Name: "sanction", Recognize: recognizeSanction},
		{Name: "donation", Recognize: recognizeDonation},
		{Name: "budget", Recognize: recognizeBudget},
	}
}

// Use appends a recognizer; it runs after the existing ones
func (g *Graph) Use(r Recognizer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recognizers = append(g.recognizers, r)
}

// ExtractFromResults runs every recognizer over every record of the
// aggregated results and returns the number of entities added
func (g *Graph) ExtractFromResults(data model.ResultData) int {
	g.mu.RLock()
	recognizers := slices.Clone(g.recognizers)
	g.mu.RUnlock()

	type batch struct {
		source  string
		records []model.Record
	}
	var batches []batch
	for _, stage := range sortedKeys(data) {
		for _, src := range sortedKeys(data[stage]) {
			if p := data[stage][src]; len(p.Records) > 0 {
				batches = append(batches, batch{source: src, records: p.Records})
			}
		}
	}

	before := g.Len()
	for _, r := range recognizers {
		for _, b := range batches {
			for _, rec := range b.records {
				r.Recognize(g, b.source, rec)
			}
		}
	}
	return g.Len() - before
}

func recognizeCompany(g *Graph, src string, rec model.Record) {
	cnpj := util.Digits(rec.String(model.KeyCNPJ))
	if len(cnpj) != 14 || isEvent(rec) {
		return
	}
	name := firstOf(rec, model.KeyLegalName, model.KeyTradeName, model.KeyName)
	if name == "" {
		return
	}

	company := newEntity(model.EntityCompany, cnpj, name, src, 0.95, rec)
	company.Attributes[model.KeyCNPJ] = cnpj
	g.AddEntity(company)

	var partners []string
	for _, p := range rec.Records(model.KeyPartners) {
		partner, ok := partyEntity(p.String(model.KeyName), firstOf(p, model.KeyCPF, model.KeyCNPJ), src, 0.9, p)
		if !ok {
			continue
		}
		g.AddEntity(partner)
		_ = g.AddRelationship(model.EntityRelationship{
			SourceID:   partner.ID,
			TargetID:   company.ID,
			Type:       model.RelOwns,
			Metadata:   map[string]any{model.KeyRole: p.String(model.KeyRole)},
			Confidence: 0.9,
		})
		partners = append(partners, partner.ID)
	}

	for i := range partners {
		for j := i + 1; j < len(partners); j++ {
			_ = g.AddRelationship(model.EntityRelationship{
				SourceID:      partners[i],
				TargetID:      partners[j],
				Type:          model.RelPartnersWith,
				Bidirectional: true,
				Metadata:      map[string]any{"company": company.ID},
				Confidence:    0.8,
			})
		}
	}
}

func recognizeContract(g *Graph, src string, rec model.Record) {
	number := rec.String(model.KeyContractID)
	supplier := util.Digits(rec.String(model.KeySupplierCNPJ))
	if number == "" && (supplier == "" || rec[model.KeyValue] == nil) {
		return
	}
	if number == "" {
		number = supplier + "-" + rec.String(model.KeySignedAt) + "-" + rec.String(model.KeyValue)
	}

	name := "Contrato " + number
	if obj := rec.String(model.KeyObject); obj != "" {
		name = truncate(obj, 80)
	}
	contract := newEntity(model.EntityContract, number, name, src, 0.85, rec)
	contract.Attributes[model.KeyContractID] = number
	g.AddEntity(contract)

	if agency, ok := agencyEntity(rec, src); ok {
		g.AddEntity(agency)
		_ = g.AddRelationship(model.EntityRelationship{
			SourceID:   agency.ID,
			TargetID:   contract.ID,
			Type:       model.RelIssuedContract,
			Confidence: 0.85,
		})
	}

	// only suppliers already known from other payloads are linked
	for _, company := range g.FindByAttribute(model.KeyCNPJ, supplier) {
		_ = g.AddRelationship(model.EntityRelationship{
			SourceID:   company.ID,
			TargetID:   contract.ID,
			Type:       model.RelAwardedContract,
			Metadata:   map[string]any{model.KeyValue: rec.Float(model.KeyValue)},
			Confidence: 0.9,
		})
	}
}

func recognizeBidding(g *Graph, src string, rec model.Record) {
	number := rec.String(model.KeyBiddingID)
	if number == "" {
		return
	}
	name := "Licitação " + number
	if obj := rec.String(model.KeyObject); obj != "" {
		name = truncate(obj, 80)
	}
	bidding := newEntity(model.EntityBidding, number, name, src, 0.85, rec)
	g.AddEntity(bidding)

	supplier := util.Digits(rec.String(model.KeySupplierCNPJ))
	for _, company := range g.FindByAttribute(model.KeyCNPJ, supplier) {
		_ = g.AddRelationship(model.EntityRelationship{
			SourceID:   company.ID,
			TargetID:   bidding.ID,
			Type:       model.RelParticipatedIn,
			Confidence: 0.85,
		})
	}
}

// recognizeSanction marks known parties as sanctioned, or adds the
// sanctioned party when it is new
func recognizeSanction(g *Graph, src string, rec model.Record) {
	sanction := rec.String(model.KeySanction)
	if sanction == "" {
		return
	}
	taxID := util.Digits(firstOf(rec, model.KeyCNPJ, model.KeyCPF))
	if taxID == "" {
		return
	}

	key := model.KeyCNPJ
	if len(taxID) == 11 {
		key = model.KeyCPF
	}
	known := g.FindByAttribute(key, taxID)
	for _, e := range known {
		g.Annotate(e.ID, model.KeySanction, sanction)
	}
	if len(known) > 0 {
		return
	}

	party, ok := partyEntity(firstOf(rec, model.KeyLegalName, model.KeyName), taxID, src, 0.8, rec)
	if ok {
		g.AddEntity(party)
	}
}

func recognizeDonation(g *Graph, src string, rec model.Record) {
	candidate := rec.String(model.KeyCandidate)
	donorName := rec.String(model.KeyDonorName)
	if candidate == "" || donorName == "" {
		return
	}

	donor, ok := partyEntity(donorName, rec.String(model.KeyDonorID), src, 0.8, nil)
	if !ok {
		return
	}
	politicianKey := util.Digits(rec.String(model.KeyCandidateCPF))
	if len(politicianKey) != 11 {
		politicianKey = candidate
	}
	politician := newEntity(model.EntityPolitician, politicianKey, candidate, src, 0.85, nil)
	if party := rec.String(model.KeyParty); party != "" {
		politician.Attributes[model.KeyParty] = party
	}
	if len(politicianKey) == 11 {
		politician.Attributes[model.KeyCPF] = politicianKey
	}

	g.AddEntity(donor)
	g.AddEntity(politician)
	_ = g.AddRelationship(model.EntityRelationship{
		SourceID:   donor.ID,
		TargetID:   politician.ID,
		Type:       model.RelDonatedTo,
		Metadata:   map[string]any{model.KeyValue: rec.Float(model.KeyValue)},
		Confidence: 0.85,
	})
}

func recognizeBudget(g *Graph, src string, rec model.Record) {
	label := firstOf(rec, model.KeyProgram, model.KeyFunction)
	if label == "" || (rec[model.KeyCommitted] == nil && rec[model.KeyPaid] == nil) {
		return
	}

	agency, hasAgency := agencyEntity(rec, src)
	key := label
	if hasAgency {
		key = agency.Name + " " + label
	}
	item := newEntity(model.EntityBudgetItem, key, label, src, 0.9, rec)
	g.AddEntity(item)

	if hasAgency {
		g.AddEntity(agency)
		_ = g.AddRelationship(model.EntityRelationship{
			SourceID:   item.ID,
			TargetID:   agency.ID,
			Type:       model.RelAllocatedTo,
			Metadata:   map[string]any{model.KeyCommitted: rec.Float(model.KeyCommitted), model.KeyPaid: rec.Float(model.KeyPaid)},
			Confidence: 0.9,
		})
	}
}

// partyEntity builds a company (14-digit id) or person entity, keyed by the
// tax id when complete and by name otherwise (masked CPFs are common)
func partyEntity(name, taxID, src string, confidence float64, rec model.Record) (model.Entity, bool) {
	digits := util.Digits(taxID)
	if name == "" && len(digits) != 11 && len(digits) != 14 {
		return model.Entity{}, false
	}

	switch len(digits) {
	case 14:
		e := newEntity(model.EntityCompany, digits, name, src, confidence, rec)
		e.Attributes[model.KeyCNPJ] = digits
		return e, true
	case 11:
		e := newEntity(model.EntityPerson, digits, name, src, confidence, rec)
		e.Attributes[model.KeyCPF] = digits
		return e, true
	default:
		return newEntity(model.EntityPerson, name, name, src, confidence*0.8, rec), true
	}
}

func agencyEntity(rec model.Record, src string) (model.Entity, bool) {
	name := rec.String(model.KeyAgency)
	code := rec.String(model.KeyAgencyCode)
	key := code
	if key == "" {
		key = name
	}
	if key == "" {
		return model.Entity{}, false
	}
	if name == "" {
		name = code
	}
	e := newEntity(model.EntityAgency, key, name, src, 0.9, nil)
	if code != "" {
		e.Attributes[model.KeyAgencyCode] = code
	}
	return e, true
}

// newEntity copies the scalar fields of rec into the entity attributes
func newEntity(t model.EntityType, key, name, src string, confidence float64, rec model.Record) model.Entity {
	attrs := make(map[string]any, len(rec)+1)
	for k, v := range rec {
		switch v.(type) {
		case []any, []model.Record, []map[string]any, map[string]any:
			continue
		}
		attrs[k] = v
	}
	if name != "" {
		attrs[model.KeyName] = name
	}
	return model.Entity{
		ID:         ID(t, key),
		Type:       t,
		Name:       name,
		Attributes: attrs,
		Source:     src,
		Confidence: confidence,
	}
}

// isEvent reports whether a record describes a transaction rather than a
// registry entry, even though it carries a cnpj
func isEvent(rec model.Record) bool {
	for _, k := range []string{model.KeyContractID, model.KeyBiddingID, model.KeySanction, model.KeyDonorName, model.KeyCommitted} {
		if rec[k] != nil {
			return true
		}
	}
	return false
}

func firstOf(rec model.Record, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(rec.String(k)); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
