package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"taste-agent/internal/domain"
)

const (
	pkPrefixCuisine    = "CUISINE#"
	skPrefixRestaurant = "RESTAURANT#"
	defaultMaxPages    = 5
)

// catalogAPI is the minimal DynamoDB interface required by RestaurantCatalog.
type catalogAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// RestaurantCatalog searches restaurants stored one item per restaurant:
//
//	PK = CUISINE#<cuisine, lower case>
//	SK = RESTAURANT#<id>
//	search_text = lower-cased name, cuisine, address and signature dishes
//
// A cuisine filter becomes a Query on its partition; anything else is a
// filtered Scan. Reads stop after maxPages pages. Distance filtering and
// ranking happen in process.
type RestaurantCatalog struct {
	api       catalogAPI
	tableName string
	maxPages  int
}

func NewRestaurantCatalog(api catalogAPI, tableName string) (*RestaurantCatalog, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &RestaurantCatalog{api: api, tableName: tableName, maxPages: defaultMaxPages}, nil
}

func cuisinePK(cuisine string) string {
	return pkPrefixCuisine + strings.ToLower(strings.TrimSpace(cuisine))
}

func (c *RestaurantCatalog) SearchRestaurants(ctx context.Context, q domain.RestaurantQuery) ([]domain.Restaurant, error) {
	items, err := c.read(ctx, q)
	if err != nil {
		return nil, err
	}

	results := make([]domain.Restaurant, 0, len(items))
	for _, item := range items {
		r, err := itemToRestaurant(item)
		if err != nil {
			return nil, fmt.Errorf("repository: SearchRestaurants unmarshal: %w", err)
		}
		if q.Latitude != nil && q.Longitude != nil {
			d := distanceKm(*q.Latitude, *q.Longitude, r.Latitude, r.Longitude)
			if d > q.RadiusKm {
				continue
			}
			r.DistanceKm = &d
		}
		results = append(results, r)
	}

	rank(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (c *RestaurantCatalog) read(ctx context.Context, q domain.RestaurantQuery) ([]map[string]types.AttributeValue, error) {
	values := map[string]types.AttributeValue{}
	var filter *string
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		filter = aws.String("contains(search_text, :q)")
		values[":q"] = sAttr(text)
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for page := 0; page < c.maxPages; page++ {
		var (
			pageItems []map[string]types.AttributeValue
			lastKey   map[string]types.AttributeValue
		)
		if q.Cuisine != "" {
			qValues := copyValues(values)
			qValues[":pk"] = sAttr(cuisinePK(q.Cuisine))
			out, err := c.api.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String(c.tableName),
				KeyConditionExpression:    aws.String("PK = :pk"),
				FilterExpression:          filter,
				ExpressionAttributeValues: qValues,
				ExclusiveStartKey:         startKey,
			})
			if err != nil {
				return nil, fmt.Errorf("repository: SearchRestaurants query: %w", err)
			}
			pageItems, lastKey = out.Items, out.LastEvaluatedKey
		} else {
			sValues := copyValues(values)
			sValues[":sk"] = sAttr(skPrefixRestaurant)
			expr := "begins_with(SK, :sk)"
			if filter != nil {
				expr += " AND " + *filter
			}
			out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
				TableName:                 aws.String(c.tableName),
				FilterExpression:          aws.String(expr),
				ExpressionAttributeValues: sValues,
				ExclusiveStartKey:         startKey,
			})
			if err != nil {
				return nil, fmt.Errorf("repository: SearchRestaurants scan: %w", err)
			}
			pageItems, lastKey = out.Items, out.LastEvaluatedKey
		}

		items = append(items, pageItems...)
		if len(lastKey) == 0 {
			break
		}
		startKey = lastKey
	}
	return items, nil
}

// rank orders by distance when known, otherwise by rating, best first.
func rank(rs []domain.Restaurant) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.DistanceKm != nil && b.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm {
			return *a.DistanceKm < *b.DistanceKm
		}
		ar, br := ratingOf(a), ratingOf(b)
		if ar != br {
			return ar > br
		}
		return a.Name < b.Name
	})
}

func ratingOf(r domain.Restaurant) float64 {
	if r.Rating == nil {
		return -1
	}
	return *r.Rating
}

func copyValues(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func itemToRestaurant(item map[string]types.AttributeValue) (domain.Restaurant, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Restaurant{}, err
	}
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Restaurant{}, err
	}
	r := domain.Restaurant{
		ID:         id,
		Name:       name,
		Cuisine:    optStrAttr(item, "cuisine"),
		Address:    optStrAttr(item, "address"),
		District:   optStrAttr(item, "district"),
		Province:   optStrAttr(item, "province"),
		PriceRange: optStrAttr(item, "price_range"),
		MapsURL:    optStrAttr(item, "maps_url"),
	}
	if _, ok := item["rating"]; ok {
		rating, err := floatAttr(item, "rating")
		if err != nil {
			return domain.Restaurant{}, err
		}
		r.Rating = &rating
	}
	if _, ok := item["lat"]; ok {
		if r.Latitude, err = floatAttr(item, "lat"); err != nil {
			return domain.Restaurant{}, err
		}
		if r.Longitude, err = floatAttr(item, "lng"); err != nil {
			return domain.Restaurant{}, err
		}
	}
	return r, nil
}
