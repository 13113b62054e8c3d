package reconcile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const weatherHeader = "DATA (YYYY-MM-DD);HORA (UTC);PRECIPITAÇÃO TOTAL, HORÁRIO (mm);" +
	"PRESSAO ATMOSFERICA AO NIVEL DA ESTACAO, HORARIA (mB);RADIACAO GLOBAL (KJ/m²);" +
	"TEMPERATURA DO AR - BULBO SECO, HORARIA (°C);UMIDADE RELATIVA DO AR, HORARIA (%);" +
	"VENTO, VELOCIDADE HORARIA (m/s);"

// weatherFile renders an INMET-style file with the given data lines.
func weatherFile(station string, lines ...string) string {
	var b strings.Builder
	b.WriteString("REGIAO:;SE\n")
	b.WriteString("UF:;RJ\n")
	b.WriteString("ESTACAO:;RIO DE JANEIRO\n")
	b.WriteString("CODIGO (WMO):;" + station + "\n")
	b.WriteString("LATITUDE:;-22,9\n")
	b.WriteString("LONGITUDE:;-43,2\n")
	b.WriteString("DATA DE FUNDACAO:;2007-05-25\n")
	b.WriteString(weatherHeader + "\n")
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	return b.String()
}

// weatherLine renders one data row: precipitation, temperature, humidity, wind.
func weatherLine(date, hour, precip, temp, hum, wind string) string {
	return strings.Join([]string{date, hour, precip, "1013,2", "-9999", temp, hum, wind, ""}, ";")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeLatin1(t *testing.T, dir, name, content string) string {
	t.Helper()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
	require.NoError(t, err)
	return writeFile(t, dir, name, encoded)
}

// rioSources writes the three-row Rio de Janeiro fixture used across tests.
func rioSources(t *testing.T) Sources {
	t.Helper()
	dir := t.TempDir()
	weather := writeLatin1(t, dir, "inmet/INMET_SE_RJ_001_RIO_DE_JANEIRO_2019.CSV", weatherFile("001",
		weatherLine("2019/01/01", "0000 UTC", "0", "25,1", "80", "2,5"),
		weatherLine("2019/01/01", "0100 UTC", "1,2", "24,8", "85", "3,0"),
		weatherLine("2019/01/01", "0200 UTC", "12,4", "23,9", "92", "4,1"),
	))
	events := writeFile(t, dir, "ana/cheias.csv",
		"NM_MUNICIP,CD_GEOCMU,CHEIAS_201\nRIO DE JANEIRO,3304557,1\nNITERÓI,3303302,0\n")
	catalog := writeLatin1(t, dir, "inmet/CatalogoEstacoes.csv",
		"CD_ESTACAO;DC_NOME;VL_LATITUDE;VL_LONGITUDE\n001;Rio de Janeiro;-22,9;-43,2\nA999;Petrópolis;-22,5;-43,2\n")
	return Sources{WeatherFiles: []string{weather}, EventsFile: events, CatalogFile: catalog}
}
