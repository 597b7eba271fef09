package services

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
)

// ZodiacSign describes one sign of the zodiac.
type ZodiacSign struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Element   string `json:"element"`
	DateRange string `json:"dateRange"`
}

// DailyHoroscope is one sign's reading for a calendar day.
type DailyHoroscope struct {
	Sign        string `json:"sign"`
	Date        string `json:"date"`
	Reading     string `json:"reading"`
	LuckyNumber int    `json:"luckyNumber"`
	LuckyColor  string `json:"luckyColor"`
	Mood        string `json:"mood"`
}

var zodiacSigns = []ZodiacSign{
	{Name: "aries", Symbol: "♈", Element: "fire", DateRange: "Mar 21 - Apr 19"},
	{Name: "taurus", Symbol: "♉", Element: "earth", DateRange: "Apr 20 - May 20"},
	{Name: "gemini", Symbol: "♊", Element: "air", DateRange: "May 21 - Jun 20"},
	{Name: "cancer", Symbol: "♋", Element: "water", DateRange: "Jun 21 - Jul 22"},
	{Name: "leo", Symbol: "♌", Element: "fire", DateRange: "Jul 23 - Aug 22"},
	{Name: "virgo", Symbol: "♍", Element: "earth", DateRange: "Aug 23 - Sep 22"},
	{Name: "libra", Symbol: "♎", Element: "air", DateRange: "Sep 23 - Oct 22"},
	{Name: "scorpio", Symbol: "♏", Element: "water", DateRange: "Oct 23 - Nov 21"},
	{Name: "sagittarius", Symbol: "♐", Element: "fire", DateRange: "Nov 22 - Dec 21"},
	{Name: "capricorn", Symbol: "♑", Element: "earth", DateRange: "Dec 22 - Jan 19"},
	{Name: "aquarius", Symbol: "♒", Element: "air", DateRange: "Jan 20 - Feb 18"},
	{Name: "pisces", Symbol: "♓", Element: "water", DateRange: "Feb 19 - Mar 20"},
}

var horoscopeReadings = []string{
	"A conversation you have been postponing will open an unexpected door. Speak plainly and listen longer than feels comfortable.",
	"Money matters look steadier than they have in weeks. A small indulgence is fine, a large one can wait until after the weekend.",
	"Someone close to you needs patience more than advice today. Your restraint will be remembered.",
	"An old plan resurfaces in a new form. What failed before may succeed now that the circumstances have shifted.",
	"Energy runs high in the morning and fades by evening. Front-load the difficult work and keep the night for rest.",
	"A stranger's remark carries more weight than it seems. Note it down before it slips away.",
	"Your instincts about a partnership are sound. Act on them before doubt talks you out of it.",
	"Small routines protect you today. Resist the urge to reinvent everything at once.",
	"A creative itch deserves an hour of your time. What you sketch today becomes a plan next month.",
	"Travel or movement features strongly. Even a short walk changes the shape of a stubborn problem.",
	"Let a minor slight pass without comment. The balance restores itself within days.",
	"Clarity arrives late in the day. Hold off on signing, sending or promising until it does.",
}

var luckyColors = []string{"crimson", "saffron", "emerald", "indigo", "gold", "silver", "turquoise", "violet"}

var moods = []string{"optimistic", "reflective", "determined", "restless", "serene", "curious"}

// HoroscopeService serves the zodiac catalogue and deterministic daily
// readings. A sign's reading is stable for the whole calendar day and
// cached in Redis until midnight.
type HoroscopeService struct {
	redis *redis.Client
}

func NewHoroscopeService(rdb *redis.Client) *HoroscopeService {
	return &HoroscopeService{redis: rdb}
}

func validSign(name string) bool {
	for _, s := range zodiacSigns {
		if s.Name == name {
			return true
		}
	}
	return false
}

// readingFor derives a stable reading for one sign and day.
func readingFor(sign, date string) DailyHoroscope {
	h := fnv.New32a()
	h.Write([]byte(sign + "|" + date))
	seed := h.Sum32()

	return DailyHoroscope{
		Sign:        sign,
		Date:        date,
		Reading:     horoscopeReadings[seed%uint32(len(horoscopeReadings))],
		LuckyNumber: int(seed%99) + 1,
		LuckyColor:  luckyColors[(seed>>8)%uint32(len(luckyColors))],
		Mood:        moods[(seed>>16)%uint32(len(moods))],
	}
}

// ListSigns returns the zodiac catalogue
// @Summary List zodiac signs
// @Description List all twelve zodiac signs with symbol, element and date range
// @Tags horoscope
// @Produce json
// @Success 200 {array} ZodiacSign
// @Router /horoscope/signs [get]
func (hs *HoroscopeService) ListSigns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(zodiacSigns)
}

// GetDaily returns today's reading for one sign
// @Summary Daily horoscope
// @Description Get today's horoscope for a zodiac sign
// @Tags horoscope
// @Produce json
// @Param sign path string true "Zodiac sign" Enums(aries, taurus, gemini, cancer, leo, virgo, libra, scorpio, sagittarius, capricorn, aquarius, pisces)
// @Success 200 {object} DailyHoroscope
// @Failure 400 {object} ErrorResponse
// @Router /horoscope/{sign} [get]
func (hs *HoroscopeService) GetDaily(w http.ResponseWriter, r *http.Request) {
	sign := strings.ToLower(chi.URLParam(r, "sign"))
	if !validSign(sign) {
		SendErrorResponse(w, "Unknown zodiac sign", http.StatusBadRequest, nil)
		return
	}

	now := time.Now()
	date := now.Format("2006-01-02")
	key := fmt.Sprintf("horoscope:%s:%s", sign, date)

	if hs.redis != nil {
		if cached, err := hs.redis.Get(r.Context(), key).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(cached))
			return
		}
	}

	daily := readingFor(sign, date)
	payload, err := json.Marshal(daily)
	if err != nil {
		SendErrorResponse(w, "Failed to build horoscope", http.StatusInternalServerError, nil)
		return
	}

	if hs.redis != nil {
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		if err := hs.redis.Set(context.Background(), key, payload, time.Until(midnight)).Err(); err != nil {
			log.Printf("[HOROSCOPE] Cache write failed for %s: %v", key, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
