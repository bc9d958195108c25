package apihttp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	municipality "wastefee-cloud/internal/municipality/domain"
	rewardsapp "wastefee-cloud/internal/rewards/application"
	rewards "wastefee-cloud/internal/rewards/domain"
	simulator "wastefee-cloud/internal/simulator/domain"
	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
)

const timeLayout = time.RFC3339

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

type municipalityDTO struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	NameEN    string      `json:"name_en"`
	AnnualFee json.Number `json:"annual_fee"`
	Region    string      `json:"region"`
}

func toMunicipality(m municipality.Municipality) municipalityDTO {
	return municipalityDTO{
		ID:        string(m.ID),
		Name:      m.Name,
		NameEN:    m.NameEN,
		AnnualFee: money(m.AnnualFee),
		Region:    m.Region,
	}
}

type accountDTO struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	PropertyNumber string      `json:"property_number"`
	MunicipalityID string      `json:"municipality_id"`
	AnnualFee      json.Number `json:"annual_fee"`
	OwnerName      string      `json:"owner_name,omitempty"`
	Address        string      `json:"address"`
	Verified       bool        `json:"verified"`
	CreatedAt      string      `json:"created_at"`
}

func toAccount(a *wallet.Account) accountDTO {
	return accountDTO{
		ID:             a.ID,
		UserID:         a.UserID,
		PropertyNumber: a.PropertyNumber,
		MunicipalityID: string(a.MunicipalityID),
		AnnualFee:      money(a.AnnualFee),
		OwnerName:      a.OwnerName,
		Address:        a.Address,
		Verified:       a.Verified,
		CreatedAt:      timestamp(a.CreatedAt),
	}
}

type walletDTO struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	AccountID         string      `json:"account_id"`
	MunicipalityID    string      `json:"municipality_id"`
	Balance           json.Number `json:"balance"`
	TotalEarned       json.Number `json:"total_earned"`
	TotalPaid         json.Number `json:"total_paid"`
	AnnualTarget      json.Number `json:"annual_target"`
	Year              int         `json:"year"`
	SessionsCompleted int         `json:"sessions_completed"`
	KWhSaved          float64     `json:"kwh_saved"`
	CreatedAt         string      `json:"created_at"`
	UpdatedAt         string      `json:"updated_at"`
}

func toWallet(w *wallet.Wallet) walletDTO {
	return walletDTO{
		ID:                w.ID,
		UserID:            w.UserID,
		AccountID:         w.AccountID,
		MunicipalityID:    string(w.MunicipalityID),
		Balance:           money(w.Balance),
		TotalEarned:       money(w.TotalEarned),
		TotalPaid:         money(w.TotalPaid),
		AnnualTarget:      money(w.AnnualTarget),
		Year:              w.Year,
		SessionsCompleted: w.SessionsCompleted,
		KWhSaved:          w.KWhSaved,
		CreatedAt:         timestamp(w.CreatedAt),
		UpdatedAt:         timestamp(w.UpdatedAt),
	}
}

type walletView struct {
	Wallet          walletDTO        `json:"wallet"`
	ProgressPercent float64          `json:"progress_percent"`
	Remaining       json.Number      `json:"remaining"`
	Surplus         json.Number      `json:"surplus"`
	Municipality    *municipalityDTO `json:"municipality,omitempty"`
}

func toWalletView(w *wallet.Wallet, m *municipality.Municipality) walletView {
	progress := w.Progress()
	view := walletView{
		Wallet:          toWallet(w),
		ProgressPercent: progress.Percent,
		Remaining:       money(progress.Remaining),
		Surplus:         money(progress.Surplus),
	}
	if m != nil {
		dto := toMunicipality(*m)
		view.Municipality = &dto
	}
	return view
}

type transactionDTO struct {
	ID           string      `json:"id"`
	WalletID     string      `json:"wallet_id"`
	Type         string      `json:"type"`
	Amount       json.Number `json:"amount"`
	SessionID    string      `json:"session_id,omitempty"`
	PaymentID    string      `json:"payment_id,omitempty"`
	Description  string      `json:"description"`
	KWhSaved     float64     `json:"kwh_saved"`
	DoublePoints bool        `json:"is_double_points"`
	CreatedAt    string      `json:"created_at"`
}

func toTransaction(tx *wallet.Transaction) transactionDTO {
	return transactionDTO{
		ID:           tx.ID,
		WalletID:     tx.WalletID,
		Type:         string(tx.Kind),
		Amount:       money(tx.Amount),
		SessionID:    tx.SessionID,
		PaymentID:    tx.PaymentID,
		Description:  tx.Description,
		KWhSaved:     tx.KWhSaved,
		DoublePoints: tx.DoublePoints,
		CreatedAt:    timestamp(tx.CreatedAt),
	}
}

func toTransactions(txs []*wallet.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransaction(tx))
	}
	return out
}

type sessionDTO struct {
	ID           string      `json:"id"`
	WalletID     string      `json:"wallet_id"`
	StartTime    string      `json:"start_time"`
	EndTime      string      `json:"end_time"`
	BaselineKWh  float64     `json:"baseline_kwh"`
	ActualKWh    float64     `json:"actual_kwh"`
	SavingsKWh   float64     `json:"kwh_saved"`
	Earnings     json.Number `json:"eur_earned"`
	DoublePoints bool        `json:"is_double_points"`
}

func toSession(s rewards.Session) sessionDTO {
	return sessionDTO{
		ID:           s.ID,
		WalletID:     s.WalletID,
		StartTime:    timestamp(s.StartTime),
		EndTime:      timestamp(s.EndTime),
		BaselineKWh:  s.BaselineKWh,
		ActualKWh:    s.ActualKWh,
		SavingsKWh:   s.SavingsKWh,
		Earnings:     money(s.Earnings),
		DoublePoints: s.DoublePoints,
	}
}

type sessionResponse struct {
	Success       bool        `json:"success"`
	Session       sessionDTO  `json:"session"`
	Multiplier    int         `json:"multiplier"`
	Balance       json.Number `json:"balance"`
	TransactionID string      `json:"transaction_id,omitempty"`
}

func toSessionResponse(outcome *rewardsapp.SessionOutcome) sessionResponse {
	resp := sessionResponse{
		Success:    true,
		Session:    toSession(outcome.Session),
		Multiplier: outcome.Reward.Multiplier,
	}
	if outcome.Wallet != nil {
		resp.Balance = money(outcome.Wallet.Balance)
	}
	if outcome.Transaction != nil {
		resp.TransactionID = outcome.Transaction.ID
	}
	return resp
}

type paymentDTO struct {
	ID             string      `json:"id"`
	WalletID       string      `json:"wallet_id"`
	MunicipalityID string      `json:"municipality_id"`
	Amount         json.Number `json:"amount"`
	ReceiptNumber  string      `json:"receipt_number"`
	PaymentDate    string      `json:"payment_date"`
	Status         string      `json:"status"`
}

func toPayment(p *wallet.Payment) paymentDTO {
	return paymentDTO{
		ID:             p.ID,
		WalletID:       p.WalletID,
		MunicipalityID: string(p.MunicipalityID),
		Amount:         money(p.Amount),
		ReceiptNumber:  p.ReceiptNumber,
		PaymentDate:    timestamp(p.PaymentDate),
		Status:         p.Status,
	}
}

type receiptDTO struct {
	ReceiptNumber string      `json:"receipt_number"`
	PaymentID     string      `json:"payment_id"`
	PaymentDate   string      `json:"payment_date"`
	Amount        json.Number `json:"amount"`
	Payer         struct {
		WalletID string `json:"wallet_id"`
		UserID   string `json:"user_id"`
	} `json:"payer"`
	Recipient struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		NameEN string `json:"name_en"`
		Type   string `json:"type"`
	} `json:"recipient"`
	Status string `json:"status"`
}

func toReceipt(r *walletapp.Receipt) receiptDTO {
	var dto receiptDTO
	dto.ReceiptNumber = r.Payment.ReceiptNumber
	dto.PaymentID = r.Payment.ID
	dto.PaymentDate = timestamp(r.Payment.PaymentDate)
	dto.Amount = money(r.Payment.Amount)
	dto.Payer.WalletID = r.Wallet.ID
	dto.Payer.UserID = r.Wallet.UserID
	dto.Recipient.ID = string(r.Municipality.ID)
	dto.Recipient.Name = r.Municipality.Name
	dto.Recipient.NameEN = r.Municipality.NameEN
	dto.Recipient.Type = "Municipal Waste Fees"
	dto.Status = "PAID"
	return dto
}

type surplusResponse struct {
	Success      bool         `json:"success"`
	Action       string       `json:"action"`
	Surplus      json.Number  `json:"surplus_amount"`
	Year         int          `json:"year"`
	DonationID   string       `json:"donation_id,omitempty"`
	DonationYear int          `json:"donation_year,omitempty"`
	Wallet       walletDTO    `json:"wallet"`
	Donation     *donationDTO `json:"donation,omitempty"`
}

type donationDTO struct {
	ID        string      `json:"id"`
	WalletID  string      `json:"wallet_id"`
	Amount    json.Number `json:"amount"`
	Year      int         `json:"year"`
	CreatedAt string      `json:"created_at"`
}

func toSurplus(o *wallet.SurplusOutcome) surplusResponse {
	resp := surplusResponse{
		Success: true,
		Action:  string(o.Action),
		Surplus: money(o.Surplus),
		Year:    o.Wallet.Year,
		Wallet:  toWallet(o.Wallet),
	}
	if o.Donation != nil {
		resp.DonationID = o.Donation.ID
		resp.DonationYear = o.Donation.Year
		donation := toDonation(o.Donation)
		resp.Donation = &donation
	}
	return resp
}

func toDonation(d *wallet.Donation) donationDTO {
	return donationDTO{
		ID:        d.ID,
		WalletID:  d.WalletID,
		Amount:    money(d.Amount),
		Year:      d.Year,
		CreatedAt: timestamp(d.CreatedAt),
	}
}

type goalDTO struct {
	AnnualTarget     json.Number `json:"annual_target"`
	TotalPaid        json.Number `json:"total_paid"`
	Remaining        json.Number `json:"remaining"`
	ProgressPercent  float64     `json:"progress_percent"`
	ExpectedProgress float64     `json:"expected_progress"`
	OnTrack          bool        `json:"on_track"`
	MonthlyTarget    json.Number `json:"monthly_target"`
	Month            int         `json:"month"`
	Year             int         `json:"year"`
}

func toGoal(g wallet.Goal) goalDTO {
	return goalDTO{
		AnnualTarget:     money(g.AnnualTarget),
		TotalPaid:        money(g.TotalPaid),
		Remaining:        money(g.Remaining),
		ProgressPercent:  g.Percent,
		ExpectedProgress: g.ExpectedPercent,
		OnTrack:          g.OnTrack,
		MonthlyTarget:    money(g.MonthlyTarget),
		Month:            g.Month,
		Year:             g.Year,
	}
}

type doublePointsDTO struct {
	Success       bool    `json:"success"`
	DoublePoints  bool    `json:"is_double_points"`
	Multiplier    int     `json:"multiplier"`
	Reason        *string `json:"reason"`
	Today         string  `json:"today"`
	NextDoubleDay string  `json:"next_double_day,omitempty"`
}

func toDoublePoints(s rewards.DoublePointsStatus) doublePointsDTO {
	dto := doublePointsDTO{
		Success:      true,
		DoublePoints: s.DoublePoints,
		Multiplier:   s.Multiplier,
		Today:        s.Today.Format(time.DateOnly),
	}
	if s.Reason != "" {
		reason := s.Reason
		dto.Reason = &reason
	}
	if !s.NextDay.IsZero() {
		dto.NextDoubleDay = s.NextDay.Format(time.DateOnly)
	}
	return dto
}

type projectionDTO struct {
	AnnualFee           json.Number `json:"annual_fee_goal"`
	Rate                json.Number `json:"kwh_rate"`
	Weeks               int         `json:"weeks"`
	TotalSessions       int         `json:"total_sessions"`
	TotalKWh            float64     `json:"total_kwh_saved"`
	TotalEarnings       json.Number `json:"total_earnings"`
	WeeksToGoal         int         `json:"weeks_to_reach_goal"`
	GoalReached         bool        `json:"goal_reached"`
	WeeksToGoalUncapped int         `json:"weeks_to_reach_goal_uncapped"`
	Surplus             json.Number `json:"surplus_available"`
	CoveragePercent     float64     `json:"fee_coverage_percentage"`
	WeeklyEarnings      json.Number `json:"avg_weekly_earnings"`
	SessionsNeeded      int         `json:"sessions_needed_to_reach_goal"`
}

func toProjection(p simulator.Projection) projectionDTO {
	return projectionDTO{
		AnnualFee:           money(p.AnnualFee),
		Rate:                json.Number(p.Rate.String()),
		Weeks:               p.Weeks,
		TotalSessions:       p.TotalSessions,
		TotalKWh:            p.TotalKWh,
		TotalEarnings:       money(p.TotalEarnings),
		WeeksToGoal:         p.WeeksToGoal,
		GoalReached:         p.GoalReached,
		WeeksToGoalUncapped: p.WeeksToGoalUncapped,
		Surplus:             money(p.Surplus),
		CoveragePercent:     p.CoveragePercent,
		WeeklyEarnings:      money(p.WeeklyEarnings),
		SessionsNeeded:      p.SessionsNeeded,
	}
}
