package ebus

type EventAggregatorFunc func(b *Bus, name string, value float64)

type Aggregator struct {
	fun EventAggregatorFunc
}

func (b *Bus) RegisterAggregator(aggs ...*Aggregator) {
	b.aggregatorsLock.Lock()
	defer b.aggregatorsLock.Unlock()
outer:
	for _, agg := range aggs {
		for _, existing := range b.aggregators {
			if existing == agg {
				continue outer
			}
		}
		b.aggregators = append(b.aggregators, agg)
	}
}

// PercentAggregator publishes done/total*100 on outputName whenever either
// input topic changes and total is known.
func PercentAggregator(done, total, outputName string) *Aggregator {
	var doneValue, totalValue float64
	return &Aggregator{
		fun: func(b *Bus, name string, value float64) {
			switch name {
			case done:
				doneValue = value
			case total:
				totalValue = value
			default:
				return
			}
			if totalValue > 0 {
				b.Publish(outputName, doneValue/totalValue*100)
			}
		},
	}
}
