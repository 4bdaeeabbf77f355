package extract

const keyInsightsPrompt = `Here is data for a hotel reservation email. Please extract key insights from the email:
- hotel name
- check-in, check-out dates, month of year, season of year, is this a ski-week trip? a spring break trip? a summer trip? etc.
- location of the hotel, e.g. city, state, country, etc. what type of area is it? a beach, a mountain, a city, a town, etc.
- number of and age of guests
- total price, price per night, price per room, price per guest, etc.
- is the guest a type of loyalty program member of a hotel chain? What membership level?
- payment method (credit, debit, points, promotion, etc.)
- type of room or suite, views, great and unusual amenities like beach front, pool, gym, michelin dining, etc. (and obvious ones like free wifi, etc.)
- special requests made by guests (e.g. roses on arrival, baby crib, etc.)
- probable purpose of the trip: use the room type and number of guests to infer the purpose of the trip, e.g. business, family, couple, etc. 2 queen beds and 2 adults probably isn't a couple's getaway.
- any other key insights that would be helpful for a travel planner to know.

Email data:
%s`

const stayLengthPrompt = `Here is data for a hotel reservation email. How many nights is the stay? Answer with a single integer and nothing else, for example 3. If the email does not say, answer 0.

Email data:
%s`

const stayYearPrompt = `Here is data for a hotel reservation email. In which year does the stay begin (the check-in year)? Answer with a single four digit integer and nothing else, for example 2024. If the email does not say, answer 0.

Email data:
%s`
