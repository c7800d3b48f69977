package quantize

const (
	// PercentileTableSize is the number of entries in every percentile table
	PercentileTableSize = 60

	// percentileSpan is the stride numerator of the Percentile scale:
	// thresholds are picked every percentileSpan/N entries, so the last
	// entry of a table is never a threshold
	percentileSpan = PercentileTableSize - 1

	// MaxPercentileLevels is the largest level count the Percentile scale
	// can pick distinct thresholds for
	MaxPercentileLevels = percentileSpan
)

type normalParams struct {
	mu    float64
	sigma float64
}

var standardValues = map[string]normalParams{
	"bass":   {mu: 0.038015, sigma: 0.073480},
	"drums":  {mu: 0.028142, sigma: 0.07326},
	"vocals": {mu: 0.022812, sigma: 0.049614},
	"other":  {mu: 0.037464, sigma: 0.053378},
	"main":   {mu: 0.99669, sigma: 1.229977},
}

var percentileScale = map[string][PercentileTableSize]float64{
	"bass": {
		0, 0.001157284, 0.001429282, 0.0018345797, 0.0023262554,
		0.0028819158, 0.003494828, 0.0041640764, 0.004889756, 0.005669035,
		0.0065031713, 0.007396182, 0.008347249, 0.00936502, 0.010437891,
		0.011478838, 0.012122021, 0.012525667, 0.012854439, 0.013725911,
		0.014990378, 0.016128056, 0.016993368, 0.017975546, 0.01951725,
		0.021167342, 0.022897968, 0.024711492, 0.026596598, 0.028407376,
		0.030470818, 0.032670952, 0.035004966, 0.037464187, 0.040052935,
		0.042767517, 0.045635212, 0.04864127, 0.051818892, 0.055170633,
		0.058723874, 0.06250961, 0.06657836, 0.07097216, 0.07580591,
		0.08123309, 0.08738546, 0.0944075, 0.10260611, 0.11226575,
		0.12392988, 0.1383674, 0.15509665, 0.17369953, 0.19332942,
		0.21378435, 0.23563465, 0.2617035, 0.29739547, 0.35735264,
	},
	"drums": {
		0, 0.0011123009, 0.0012339418, 0.001364873, 0.0015052524,
		0.0016557821, 0.0018167943, 0.0019888014, 0.0021723525, 0.002368551,
		0.0025787286, 0.002803017, 0.0030435654, 0.0033021488, 0.0035786494,
		0.003876434, 0.004197322, 0.004543467, 0.0049170144, 0.0053222463,
		0.005761604, 0.006238776, 0.0067598377, 0.0073265918, 0.007943939,
		0.008612922, 0.009331483, 0.010083754, 0.0108035905, 0.011485541,
		0.01204529, 0.0126626035, 0.013641676, 0.014733557, 0.015765801,
		0.0168445, 0.018021353, 0.019478343, 0.02123136, 0.023187503,
		0.025358694, 0.027759768, 0.030481339, 0.03358966, 0.037142046,
		0.041228537, 0.04593939, 0.0514256, 0.057838745, 0.0654069,
		0.07440406, 0.08513538, 0.09811039, 0.11407283, 0.13380778,
		0.15914251, 0.19285963, 0.23914841, 0.30612633, 0.4133965,
	},
	"vocals": {
		0, 0.0012548936, 0.0015783021, 0.0019592657, 0.0023963875,
		0.0028873365, 0.0034296438, 0.0040250197, 0.0046678293, 0.005357623,
		0.0060857506, 0.006843269, 0.0076302644, 0.008455195, 0.0092970375,
		0.0101150405, 0.010881178, 0.011552881, 0.012218023, 0.012842127,
		0.01334709, 0.014066377, 0.01473777, 0.015384736, 0.016064553,
		0.017199371, 0.018482659, 0.019868195, 0.021359447, 0.022930874,
		0.024597853, 0.026341362, 0.028200842, 0.030187126, 0.032328904,
		0.034610085, 0.037031814, 0.03959623, 0.042316034, 0.04519497,
		0.048245464, 0.051488522, 0.05493871, 0.05860678, 0.06252931,
		0.06673269, 0.07125724, 0.07614963, 0.0814816, 0.08731328,
		0.093744785, 0.100923575, 0.1090139, 0.11826754, 0.1290575,
		0.14195952, 0.15802476, 0.17919424, 0.20944917, 0.26178294,
	},
	"other": {
		0, 0.0012159692, 0.0014660307, 0.0017518019, 0.0020739958,
		0.0024313275, 0.0028228816, 0.0032472152, 0.0037045958, 0.0041945763,
		0.0047165235, 0.0052709244, 0.0058576637, 0.006478266, 0.007131314,
		0.007820956, 0.008546062, 0.009294467, 0.010075849, 0.010915624,
		0.011801757, 0.012735426, 0.013714738, 0.014744898, 0.015827501,
		0.01696292, 0.018159458, 0.019416416, 0.020735618, 0.022122527,
		0.023577422, 0.025111604, 0.026720988, 0.02841707, 0.030204238,
		0.032086622, 0.03407658, 0.03617948, 0.038408276, 0.040762484,
		0.043262158, 0.04591789, 0.048760142, 0.051806416, 0.055079475,
		0.05860917, 0.062425993, 0.06657897, 0.07113121, 0.07614411,
		0.08170158, 0.08793407, 0.09499398, 0.10310994, 0.11261358,
		0.12400356, 0.1381113, 0.15654816, 0.18288808, 0.22793823,
	},
	"main": {
		0, 0.0015581478, 0.0021928577, 0.0028938802, 0.003654058,
		0.004469499, 0.0053401613, 0.0062646656, 0.0072414503, 0.008275367,
		0.009369561, 0.010528434, 0.011754644, 0.013045382, 0.014407493,
		0.015844528, 0.017361723, 0.01896102, 0.02064693, 0.02241943,
		0.024284257, 0.02624285, 0.028305732, 0.03047591, 0.0327631,
		0.035173804, 0.03771267, 0.04038921, 0.043206654, 0.046189725,
		0.04933335, 0.05266592, 0.056192547, 0.059925035, 0.06389488,
		0.06811552, 0.072609946, 0.077397704, 0.0825332, 0.08803107,
		0.09392966, 0.10028723, 0.10715951, 0.11459597, 0.12266302,
		0.13141489, 0.14096773, 0.1513802, 0.16277456, 0.17529559,
		0.1890661, 0.20433073, 0.22137704, 0.24073666, 0.26311758,
		0.28957248, 0.3222283, 0.36454862, 0.42488298, 0.52815664,
	},
}

// StandardValues returns the (mean, standard deviation) pair used by the
// Normal scale for instrument
func StandardValues(instrument string) (mu, sigma float64, ok bool) {
	p, ok := standardValues[instrument]
	return p.mu, p.sigma, ok
}

// PercentileScale returns a copy of the percentile table for instrument
func PercentileScale(instrument string) ([]float64, bool) {
	table, ok := percentileScale[instrument]
	if !ok {
		return nil, false
	}
	return table[:], true
}
