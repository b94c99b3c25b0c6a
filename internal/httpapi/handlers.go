package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/homebook/internal/spreadsheet"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

// Ledgers

type ledgerRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (s *Server) listLedgers(w http.ResponseWriter, r *http.Request) {
	ls, err := s.svc.ListLedgers(r.Context(), userFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (s *Server) createLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	l, err := s.svc.CreateLedger(r.Context(), userFrom(r), req.Name, req.Currency)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	l, err := s.svc.GetLedger(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) renameLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	l, err := s.svc.RenameLedger(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteLedger(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteLedger(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) encryptLedger(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.EncryptLedger(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sealed": n})
}

func (s *Server) leaveLedger(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.LeaveLedger(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members and invitations

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.ListMembers(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) setMemberRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.svc.SetMemberRole(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveMember(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "userID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := s.svc.ListInvitations(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	inv, err := s.svc.Invite(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), req.Email, req.Role)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.svc.RevokeInvitation(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "invitationID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.AcceptInvitation(r.Context(), userFrom(r), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Transactions

// transactionRequest takes the date as YYYY-MM-DD; RFC 3339 is accepted too.
type transactionRequest struct {
	Type        string          `json:"type"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Category1   string          `json:"category1"`
	Category2   string          `json:"category2"`
	Payment     string          `json:"payment"`
	Description string          `json:"description"`
	Memo        string          `json:"memo"`
}

func (req transactionRequest) transaction() (*types.Transaction, error) {
	d, err := time.Parse(types.DateLayout, req.Date)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, req.Date); err != nil {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidDate, req.Date)
		}
	}
	return &types.Transaction{
		Type:        req.Type,
		Date:        types.Day(d),
		Amount:      req.Amount,
		Category1:   req.Category1,
		Category2:   req.Category2,
		Payment:     req.Payment,
		Description: req.Description,
		Memo:        req.Memo,
	}, nil
}

func (s *Server) decodeTransaction(r *http.Request) (*types.Transaction, error) {
	var req transactionRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return req.transaction()
}

func (s *Server) listMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.svc.Months(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, months)
}

// listTransactions accepts ?month=YYYY-MM (repeatable) or ?from=&to= month
// bounds. Without either it returns every stored month.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, ledgerID := userFrom(r), chi.URLParam(r, "ledgerID")
	var (
		txs []*types.Transaction
		err error
	)
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		if from == "" || to == "" {
			s.fail(w, fmt.Errorf("%w: from and to go together", errBadRequest))
			return
		}
		txs, err = s.svc.ListTransactionsBetween(r.Context(), user, ledgerID, from, to)
	} else {
		txs, err = s.svc.ListTransactions(r.Context(), user, ledgerID, q["month"]...)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) addTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.decodeTransaction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	tx, err = s.svc.AddTransaction(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), tx)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.svc.GetTransaction(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.decodeTransaction(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	tx, err = s.svc.UpdateTransaction(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "transactionID"), tx)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTransaction(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "transactionID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assets

type assetRequest struct {
	Kind      string          `json:"kind"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Category1 string          `json:"category1"`
	Category2 string          `json:"category2"`
	Memo      string          `json:"memo"`
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	as, err := s.svc.ListAssets(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (s *Server) createAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	a, err := s.svc.CreateAsset(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), &types.Asset{
		Kind:      req.Kind,
		Name:      req.Name,
		Balance:   req.Balance,
		Category1: req.Category1,
		Category2: req.Category2,
		Memo:      req.Memo,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) renameAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	a, err := s.svc.RenameAsset(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "assetID"), req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type assetOp func(ctx context.Context, userID, ledgerID, assetID string, amount decimal.Decimal, note string) (*types.Asset, error)

// mutateAsset serves deposit, withdraw and adjust. The body is
// {"amount": ..., "note": ...}; for adjust the amount is the new balance.
func (s *Server) mutateAsset(op assetOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount decimal.Decimal `json:"amount"`
			Note   string          `json:"note"`
		}
		if err := decode(r, &req); err != nil {
			s.fail(w, err)
			return
		}
		a, err := op(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "assetID"), req.Amount, req.Note)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAsset(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "assetID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assetHistory(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.AssetHistory(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "assetID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

// Categories

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := s.svc.ListCategories(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), r.URL.Query().Get("type"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) categoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.svc.CategoryTree(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), r.URL.Query().Get("type"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) addCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type      string `json:"type"`
		Category1 string `json:"category1"`
		Category2 string `json:"category2"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	c, err := s.svc.AddCategory(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), req.Type, req.Category1, req.Category2)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) renameCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	c, err := s.svc.RenameCategory(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "categoryID"), req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCategory(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), chi.URLParam(r, "categoryID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summaries

func (s *Server) monthlySummary(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if !types.ValidMonth(month) {
		s.fail(w, fmt.Errorf("%w: %q", types.ErrInvalidMonth, month))
		return
	}
	sum, err := s.svc.MonthlySummary(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), month)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) yearlySummary(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 || year > 9999 {
		s.fail(w, fmt.Errorf("%w: invalid year %q", errBadRequest, chi.URLParam(r, "year")))
		return
	}
	sum, err := s.svc.YearlySummary(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), year)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) netWorth(w http.ResponseWriter, r *http.Request) {
	nw, err := s.svc.NetWorth(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nw)
}

// Workbooks

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportWorkbook streams the workbook; ?month= narrows it to given months.
// The workbook is built before the first byte is written so a failure can
// still be reported with a status code.
func (s *Server) exportWorkbook(w http.ResponseWriter, r *http.Request) {
	ledgerID := chi.URLParam(r, "ledgerID")
	var buf bytes.Buffer
	if err := s.svc.ExportWorkbook(r.Context(), userFrom(r), ledgerID, &buf, r.URL.Query()["month"]...); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ledgerID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// importWorkbook takes the workbook as the raw request body.
func (s *Server) importWorkbook(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload)
	report, err := s.svc.ImportWorkbook(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// migrateLegacy reads the column layout from ?layout=, in the same
// key=value form the CLI takes.
func (s *Server) migrateLegacy(w http.ResponseWriter, r *http.Request) {
	layout, err := spreadsheet.ParseLayout(r.URL.Query().Get("layout"))
	if err != nil {
		s.fail(w, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload)
	report, err := s.svc.MigrateLegacy(r.Context(), userFrom(r), chi.URLParam(r, "ledgerID"), body, layout)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}
