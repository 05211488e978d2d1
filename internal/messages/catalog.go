// Package messages переводит коды результата провайдера в сообщения для покупателя.
package messages

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Коды, для которых нужны особые сообщения вне таблицы провайдера.
const (
	// CodeStrongAuthRejected — покупатель не прошёл строгую аутентификацию.
	CodeStrongAuthRejected = 40006
)

var (
	supported = []language.Tag{
		language.English,
		language.Swedish,
		language.Norwegian,
		language.MustParse("nb"),
		language.MustParse("nn"),
		language.Danish,
		language.Finnish,
		language.German,
		language.Dutch,
	}
	matcher = language.NewMatcher(supported)
)

const (
	keyUnknown   = "unknown"
	keyTransport = "transport"
)

// Тексты хранятся по базовому языку; английский: запасной вариант для любого кода.
var texts = map[string]map[string]string{
	"en": {
		keyUnknown:   "An unknown error occurred. Please contact the store owner about this issue.",
		keyTransport: "An error occurred whilst connecting to Svea. Please contact the store owner and display this message.",
		"20000":      "The order is closed.",
		"20001":      "The order has been denied.",
		"20003":      "The order has expired, please try again.",
		"20004":      "The order could not be found.",
		"24000":      "The invoice amount exceeds the authorized amount.",
		"30000":      "The credit report was rejected.",
		"30001":      "The customer is blocked or has shown unusual behaviour.",
		"30002":      "Based upon the performed credit check the request was rejected.",
		"30003":      "The customer could not be found by the credit check.",
		"40000":      "No customer could be found.",
		"40001":      "The country is not supported by this payment method.",
		"40002":      "Invalid customer information.",
		"40004":      "No addresses could be found for this customer.",
		"40006":      "The identification was not completed. Please try again or choose another payment method.",
		"50000":      "The store is not authorized for this payment method.",
		"107":        "The payment was declined by the bank.",
		"108":        "The payment was cancelled.",
		"129":        "The selected payment method is not valid.",
	},
	"sv": {
		keyUnknown:   "Ett okänt fel uppstod. Kontakta butiksägaren om problemet.",
		keyTransport: "Ett fel uppstod vid anslutningen till Svea. Kontakta butiksägaren och visa detta meddelande.",
		"20000":      "Ordern är stängd.",
		"20001":      "Ordern har nekats.",
		"20003":      "Ordern har gått ut, försök igen.",
		"20004":      "Ordern kunde inte hittas.",
		"24000":      "Fakturabeloppet överstiger det godkända beloppet.",
		"30000":      "Kreditupplysningen avslogs.",
		"30001":      "Kunden är spärrad eller har uppvisat ovanligt beteende.",
		"30002":      "Baserat på kreditupplysningen avslogs förfrågan.",
		"30003":      "Kunden kunde inte hittas vid kreditupplysningen.",
		"40000":      "Ingen kund kunde hittas.",
		"40001":      "Landet stöds inte av detta betalningssätt.",
		"40002":      "Ogiltig kundinformation.",
		"40004":      "Inga adresser kunde hittas för kunden.",
		"40006":      "Identifieringen slutfördes inte. Försök igen eller välj ett annat betalningssätt.",
		"50000":      "Butiken är inte behörig för detta betalningssätt.",
		"107":        "Betalningen nekades av banken.",
		"108":        "Betalningen avbröts.",
		"129":        "Det valda betalningssättet är ogiltigt.",
	},
	"no": {
		keyUnknown:   "En ukjent feil oppstod. Vennligst kontakt butikkeieren om problemet.",
		keyTransport: "En feil oppstod under tilkobling til Svea. Vennligst kontakt butikkeieren og vis denne meldingen.",
		"30002":      "Basert på kredittsjekken ble forespørselen avvist.",
		"40006":      "Identifiseringen ble ikke fullført. Prøv igjen eller velg en annen betalingsmåte.",
		"107":        "Betalingen ble avvist av banken.",
		"108":        "Betalingen ble avbrutt.",
	},
	"da": {
		keyUnknown:   "Der opstod en ukendt fejl. Kontakt venligst butiksejeren om problemet.",
		keyTransport: "Der opstod en fejl under forbindelsen til Svea. Kontakt venligst butiksejeren og vis denne besked.",
		"30002":      "På baggrund af kreditvurderingen blev anmodningen afvist.",
		"40006":      "Identifikationen blev ikke gennemført. Prøv igen eller vælg en anden betalingsmetode.",
		"107":        "Betalingen blev afvist af banken.",
		"108":        "Betalingen blev annulleret.",
	},
	"fi": {
		keyUnknown:   "Tapahtui tuntematon virhe. Ota yhteyttä kaupan omistajaan.",
		keyTransport: "Yhteydessä Sveaan tapahtui virhe. Ota yhteyttä kaupan omistajaan ja näytä tämä viesti.",
		"30002":      "Luottotietojen tarkistuksen perusteella pyyntö hylättiin.",
		"40006":      "Tunnistautumista ei suoritettu loppuun. Yritä uudelleen tai valitse toinen maksutapa.",
		"107":        "Pankki hylkäsi maksun.",
		"108":        "Maksu peruutettiin.",
	},
	"de": {
		keyUnknown:   "Ein unbekannter Fehler ist aufgetreten. Bitte wenden Sie sich an den Shopbetreiber.",
		keyTransport: "Bei der Verbindung zu Svea ist ein Fehler aufgetreten. Bitte wenden Sie sich an den Shopbetreiber und zeigen Sie diese Meldung.",
		"30002":      "Aufgrund der Bonitätsprüfung wurde die Anfrage abgelehnt.",
		"40002":      "Ungültige Kundendaten.",
		"40006":      "Die Identifizierung wurde nicht abgeschlossen. Bitte versuchen Sie es erneut oder wählen Sie eine andere Zahlungsart.",
		"107":        "Die Zahlung wurde von der Bank abgelehnt.",
		"108":        "Die Zahlung wurde abgebrochen.",
	},
	"nl": {
		keyUnknown:   "Er is een onbekende fout opgetreden. Neem contact op met de winkeleigenaar.",
		keyTransport: "Er is een fout opgetreden bij het verbinden met Svea. Neem contact op met de winkeleigenaar en toon dit bericht.",
		"30002":      "Op basis van de kredietcontrole is het verzoek afgewezen.",
		"40002":      "Ongeldige klantgegevens.",
		"40006":      "De identificatie is niet voltooid. Probeer het opnieuw of kies een andere betaalmethode.",
		"107":        "De betaling is door de bank geweigerd.",
		"108":        "De betaling is geannuleerd.",
	},
}

// Catalog выдаёт локализованные сообщения для кодов результата провайдера.
type Catalog struct {
	fallback string
}

// NewCatalog создаёт каталог; defaultLocale используется, когда язык запроса не распознан.
func NewCatalog(defaultLocale string) *Catalog {
	c := &Catalog{fallback: "en"}
	if defaultLocale != "" {
		c.fallback = c.base(defaultLocale)
	}
	return c
}

// ForCode возвращает сообщение для кода результата. Неизвестный код: общее сообщение об ошибке.
func (c *Catalog) ForCode(locale string, code int) string {
	if code == 0 {
		return c.lookup(locale, keyUnknown)
	}
	return c.lookup(locale, strconv.Itoa(code))
}

// Unknown — сообщение для отказа без кода результата.
func (c *Catalog) Unknown(locale string) string {
	return c.lookup(locale, keyUnknown)
}

// Transport — сообщение для сбоя связи с провайдером.
func (c *Catalog) Transport(locale string) string {
	return c.lookup(locale, keyTransport)
}

// Locale сводит строку языка (Accept-Language, "sv_SE", "nb") к поддерживаемому базовому коду.
func (c *Catalog) Locale(locale string) string {
	return c.base(locale)
}

func (c *Catalog) lookup(locale, key string) string {
	lang := c.base(locale)
	if text, ok := texts[lang][key]; ok {
		return text
	}
	if text, ok := texts["en"][key]; ok {
		return text
	}
	return texts[lang][keyUnknown]
}

func (c *Catalog) base(locale string) string {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" {
		return c.fallbackOrEnglish()
	}

	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return c.fallbackOrEnglish()
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return c.fallbackOrEnglish()
	}

	b, _ := supported[index].Base()
	code := b.String()
	if code == "nb" || code == "nn" {
		code = "no"
	}
	return code
}

func (c *Catalog) fallbackOrEnglish() string {
	if c.fallback == "" {
		return "en"
	}
	return c.fallback
}
