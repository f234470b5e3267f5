package configs

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	StorageRoot string
	LogDir      string

	IngresarPagoWSDL           string
	IngresarPagoWSDLVillarrica string
	IngresarPagoWSDLGorbea     string

	BancoEstadoJWTSecret   string
	BancoEstadoAPIURL      string
	BancoEstadoAPIKey      string
	BancoEstadoCommerce    string
	BancoEstadoRedirectURL string
	BancoEstadoStatusURL   string
	BancoEstadoWSDL        string

	WebpayCommerceCode string
	WebpayAPIKey       string
	WebpayEnvironment  string
	WebpayFinalURL     string

	MercadoPagoAccessToken string

	ZumpagoCompanyCode string
	ZumpagoSecret      string

	ProcessingTTLSeconds int
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ No .env file found, using system ENV")
		} else {
			log.Println("✅ .env file loaded")
		}
	} else {
		log.Println("🚀 Running in Railway, using system ENV")
	}

	StorageRoot = GetEnv("STORAGE_ROOT", "app/storage")
	LogDir = GetEnv("LOG_DIR", "app/logs")

	IngresarPagoWSDL = GetEnv("INGRESAR_PAGO_WSDL")
	IngresarPagoWSDLVillarrica = GetEnv("INGRESAR_PAGO_WSDL_VILLARRICA")
	IngresarPagoWSDLGorbea = GetEnv("INGRESAR_PAGO_WSDL_GORBEA")

	BancoEstadoJWTSecret = GetEnv("BANCOESTADO_JWT_SECRET")
	BancoEstadoAPIURL = GetEnv("BANCOESTADO_API_URL")
	BancoEstadoAPIKey = GetEnv("BANCOESTADO_API_KEY")
	BancoEstadoCommerce = GetEnv("BANCOESTADO_COMMERCE")
	BancoEstadoRedirectURL = GetEnv("BANCOESTADO_REDIRECT_URL")
	BancoEstadoStatusURL = GetEnv("BANCOESTADO_STATUS_URL")
	BancoEstadoWSDL = GetEnv("BANCOESTADO_WSDL")

	WebpayCommerceCode = GetEnv("WEBPAY_COMMERCE_CODE")
	WebpayAPIKey = GetEnv("WEBPAY_API_KEY")
	WebpayEnvironment = GetEnv("WEBPAY_ENVIRONMENT", "INTEGRACION")
	WebpayFinalURL = GetEnv("WEBPAY_FINAL_URL", "final")

	MercadoPagoAccessToken = GetEnv("MERCADOPAGO_ACCESS_TOKEN")

	ZumpagoCompanyCode = GetEnv("ZUMPAGO_COMPANY_CODE")
	ZumpagoSecret = GetEnv("ZUMPAGO_SECRET")

	ProcessingTTLSeconds = GetEnvInt("PROCESSING_TTL_SECONDS", 600)

	if IngresarPagoWSDL == "" {
		log.Println("❌ INGRESAR_PAGO_WSDL is not set, the server cannot start without it!")
	} else {
		log.Println("✅ INGRESAR_PAGO_WSDL loaded.")
	}

	if BancoEstadoJWTSecret == "" {
		log.Println("❌ BANCOESTADO_JWT_SECRET is not set!")
	} else {
		log.Println("✅ BANCOESTADO_JWT_SECRET loaded.")
	}

	if WebpayCommerceCode == "" {
		log.Println("❌ WEBPAY_COMMERCE_CODE is not set!")
	} else {
		log.Println("✅ WEBPAY_COMMERCE_CODE loaded.")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ %s is not a number (%q), using default %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return parsed
}

// EndpointOverrides maps normalized company ids to the IngresarPago endpoint
// that must receive their settlement payloads. Companies without an entry use
// the default WSDL.
func EndpointOverrides() map[string]string {
	overrides := map[string]string{
		"764430824": IngresarPagoWSDL,
	}

	villarrica := IngresarPagoWSDLVillarrica
	if villarrica == "" {
		villarrica = IngresarPagoWSDL
	}
	overrides["765316081"] = villarrica

	gorbea := IngresarPagoWSDLGorbea
	if gorbea == "" {
		gorbea = IngresarPagoWSDL
	}
	overrides["76734662K"] = gorbea

	return overrides
}
