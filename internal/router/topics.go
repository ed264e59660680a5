package router

// Topics of the reference installation.
const (
	TopicSalaDados        = "casa/sala/dados"
	TopicSalaAr           = "casa/sala/ar"
	TopicSalaUmidificador = "casa/sala/umidificador"
	TopicGaragemStatus    = "casa/garagem/status"
	TopicQuartoLuz        = "casa/quarto/luz"
	TopicQuartoTomada     = "casa/quarto/tomada"
	TopicQuartoCortina    = "casa/quarto/cortina"
)

// Subscriptions returns the topics subscribed on every successful connect,
// in subscription order.
func Subscriptions() []string {
	return []string{
		TopicSalaDados,
		TopicSalaAr,
		TopicSalaUmidificador,
		TopicGaragemStatus,
		TopicQuartoLuz,
		TopicQuartoTomada,
		TopicQuartoCortina,
	}
}
