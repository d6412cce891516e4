package synthetic

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"agrofin/finsync/normalize"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Unit is a business unit of the holding.
type Unit struct {
	Name string
	CNPJ string
}

var Units = []Unit{
	{Name: "Agro Graos Comercio", CNPJ: "12.345.678/0001-90"},
	{Name: "Agro Logistica", CNPJ: "23.456.789/0001-01"},
	{Name: "Agro Consultoria", CNPJ: "34.567.890/0001-12"},
}

type categoryDef struct {
	category, item, kind, dfc, dfcEqual string
	inflow                              bool
}

var categoryDefs = []categoryDef{
	{"Receitas", "Venda de graos", "operational", "operating", "receipts", true},
	{"Receitas", "Fretes", "operational", "operating", "receipts", true},
	{"Receitas", "Consultoria", "operational", "operating", "receipts", true},
	{"Custos", "Insumos", "operational", "operating", "payments", false},
	{"Custos", "Combustivel", "operational", "operating", "payments", false},
	{"Despesas", "Aluguel", "administrative", "operating", "payments", false},
	{"Pessoal", "Salarios", "personnel", "operating", "payments", false},
	{"Financeiro", "Juros", "financial", "financing", "interest", false},
	{"Investimentos", "Maquinario", "investment", "investing", "capex", false},
	{"Emprestimos", "Amortizacao", "loan", "financing", "debt", false},
}

type accountDef struct {
	account, bank, number string
	unit                  int
	balance               float64
}

var accountDefs = []accountDef{
	{"Conta Movimento", "Banco do Brasil", "001", 0, 152340.75},
	{"Conta Investimento", "Itau", "341", 0, 80500.00},
	{"Conta Frota", "Bradesco", "237", 1, 23410.10},
	{"Conta Servicos", "Santander", "033", 2, 9870.45},
}

// fixedID returns a stable ObjectID so repeated seeds address the same reference documents.
func fixedID(prefix, n int) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(fmt.Sprintf("%08x%016x", prefix, n))
	if err != nil {
		panic(err)
	}
	return id
}

func categoryID(i int) primitive.ObjectID { return fixedID(0xca7e, i+1) }
func accountID(i int) primitive.ObjectID  { return fixedID(0xacc0, i+1) }

// Categories returns the category taxonomy documents.
func Categories() []bson.M {
	docs := make([]bson.M, len(categoryDefs))
	for i, c := range categoryDefs {
		docs[i] = bson.M{
			"_id":       categoryID(i),
			"category":  c.category,
			"item":      c.item,
			"type":      c.kind,
			"dfc":       c.dfc,
			"dfc_equal": c.dfcEqual,
		}
	}
	return docs
}

// Accounts returns the account registry documents with nested bank and company identities.
func Accounts() []bson.M {
	docs := make([]bson.M, len(accountDefs))
	for i, a := range accountDefs {
		unit := Units[a.unit]
		docs[i] = bson.M{
			"_id":     accountID(i),
			"account": a.account,
			"bank":    bson.D{{Key: "name", Value: a.bank}, {Key: "number", Value: a.number}},
			"value":   a.balance,
			"company": bson.M{"name": unit.Name, "cnpj": unit.CNPJ},
		}
	}
	return docs
}

// LedgerEntries returns rows synthetic ledger documents dated around now.
// The mix covers every shape the normalizer accepts: partial and missing dates, Decimal128
// amounts, absent or scalar orders, forecasts and ignored entries.
func LedgerEntries(r *rand.Rand, rows int, now time.Time) []bson.M {
	docs := make([]bson.M, 0, rows)
	for i := 0; i < rows; i++ {
		catIdx := r.Intn(len(categoryDefs))
		cat := categoryDefs[catIdx]
		date := now.In(normalize.Zone).AddDate(0, 0, r.Intn(540)-450).
			Add(time.Duration(r.Intn(24*3600)) * time.Second)

		amount := math.Round((50+r.Float64()*20000)*100) / 100
		if !cat.inflow {
			amount = -amount
		}

		doc := bson.M{
			"_id":        primitive.NewObjectID(),
			"name":       fmt.Sprintf("%s #%d", cat.item, i+1),
			"category":   categoryID(catIdx),
			"account_id": accountID(r.Intn(len(accountDefs))),
			"value":      amount,
		}

		switch {
		case i%17 == 16:
			// no date
		case i%5 == 4:
			doc["date"] = date.Format("20060102")
		default:
			doc["date"] = date.Format("20060102150405")
		}

		if i%11 == 10 {
			if d, err := primitive.ParseDecimal128(fmt.Sprintf("%.2f", amount)); err == nil {
				doc["value"] = d
			}
		}

		switch i % 4 {
		case 0:
			orders := bson.A{}
			for n := r.Intn(3) + 1; n > 0; n-- {
				orders = append(orders, primitive.NewObjectID())
			}
			doc["orders"] = orders
		case 1:
			doc["orders"] = fmt.Sprintf("PO-%05d", r.Intn(100000))
		case 2:
			doc["orders"] = bson.A{}
		}

		if date.After(now) {
			doc["is_forecast"] = true
		} else if i%3 == 0 {
			doc["is_forecast"] = false
		}

		if i%13 == 12 {
			doc[normalize.IgnoredField] = true
		}
		docs = append(docs, doc)
	}
	return docs
}
