package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slotline/internal/models"
	"slotline/internal/timeutil"
)

// Digest sends a morning summary of tomorrow's appointments to a staff
// or admin chat. Client-facing reminders are out of scope because the
// engine keys clients by phone number, not by chat.
type Digest struct {
	bot         *Bot
	source      DigestSource
	org         *models.Organization
	loc         *time.Location
	adminChatID int64
	localHour   int
}

// DigestSource lists an organization's appointments for one day.
type DigestSource interface {
	ListAppointmentsForOrganization(ctx context.Context, organizationID int64, from, to time.Time) ([]models.Appointment, error)
}

// NewDigest configures the daily digest. adminChatID 0 disables it.
func NewDigest(bot *Bot, source DigestSource, org *models.Organization, loc *time.Location, adminChatID int64) *Digest {
	return &Digest{
		bot:         bot,
		source:      source,
		org:         org,
		loc:         loc,
		adminChatID: adminChatID,
		localHour:   9,
	}
}

// Start runs the digest loop until ctx is canceled.
func (d *Digest) Start(ctx context.Context) {
	if d.adminChatID == 0 {
		return
	}

	go func() {
		timer := time.NewTimer(d.untilNextRun())
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				d.sendTomorrowDigest(ctx)
				timer.Reset(24 * time.Hour)
			}
		}
	}()
}

func (d *Digest) sendTomorrowDigest(ctx context.Context) {
	tomorrow := time.Now().In(d.loc).AddDate(0, 0, 1)
	dayStart, dayEnd := timeutil.LocalDayRange(tomorrow, d.loc)

	appts, err := d.source.ListAppointmentsForOrganization(ctx, d.org.ID, dayStart, dayEnd)
	if err != nil {
		d.bot.logger.Error().Err(err).Msg("digest: list appointments")
		return
	}

	var lines []string
	for _, a := range appts {
		if !a.Blocks() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s  %s (%s)",
			a.StartTime.In(d.loc).Format("15:04"), a.ClientName, a.Status))
	}

	var text string
	if len(lines) == 0 {
		text = "No appointments tomorrow."
	} else {
		text = fmt.Sprintf("Tomorrow, %s:\n%s",
			dayStart.In(d.loc).Format("2006-01-02"), strings.Join(lines, "\n"))
	}
	d.bot.reply(ctx, d.adminChatID, text)
}

func (d *Digest) untilNextRun() time.Duration {
	now := time.Now().In(d.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), d.localHour, 0, 0, 0, d.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
